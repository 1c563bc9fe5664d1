package split

import (
	"testing"
)

func TestWeightsShape(t *testing.T) {
	tests := []struct {
		size, overlap int
	}{
		{512, 128},
		{64, 16},
		{9, 4},
		{10, 0},
		{6, 5},
	}
	for _, tt := range tests {
		w := Weights(tt.size, tt.overlap)
		n := tt.size
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				v := w.At(y, x)
				if v <= 0 || v > 1 {
					t.Fatalf("size=%d ov=%d: w[%d,%d]=%v outside (0,1]", n, tt.overlap, y, x, v)
				}
				if v != w.At(n-1-y, x) || v != w.At(y, n-1-x) {
					t.Fatalf("size=%d ov=%d: not flip-symmetric at (%d,%d)", n, tt.overlap, y, x)
				}
				d := min(x, y, n-1-x, n-1-y)
				if d >= tt.overlap && v != 1 {
					t.Fatalf("size=%d ov=%d: interior w[%d,%d]=%v, want 1", n, tt.overlap, y, x, v)
				}
			}
		}
		// non-decreasing from each edge towards the centre
		for y := 0; y < n; y++ {
			for x := 1; x <= (n-1)/2; x++ {
				if w.At(y, x) < w.At(y, x-1) {
					t.Fatalf("size=%d ov=%d: row %d decreases at %d", n, tt.overlap, y, x)
				}
			}
		}
		for x := 0; x < n; x++ {
			for y := 1; y <= (n-1)/2; y++ {
				if w.At(y, x) < w.At(y-1, x) {
					t.Fatalf("size=%d ov=%d: column %d decreases at %d", n, tt.overlap, x, y)
				}
			}
		}
	}
}

func TestWeightsRamp(t *testing.T) {
	w := Weights(16, 4)
	want := []float64{0.25, 0.5, 0.75, 1}
	for i, v := range want {
		if got := w.At(8, i); got != v {
			t.Errorf("w[8,%d] = %v, want %v", i, got, v)
		}
	}
	if got := w.At(0, 0); got != 0.0625 {
		t.Errorf("corner = %v, want 0.0625", got)
	}
}
