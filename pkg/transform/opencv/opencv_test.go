//go:build opencv

package opencv

import (
	"context"
	"errors"
	"testing"

	"gocv.io/x/gocv"

	"github.com/PhantomInTheWire/tiled-inpaint/pkg/inpaint"
)

func TestNew(t *testing.T) {
	tests := []struct {
		method string
		radius float32
		want   gocv.InpaintMethods
		wantR  float32
		err    bool
	}{
		{"", 0, gocv.Telea, DefaultRadius, false},
		{"Telea", 3, gocv.Telea, 3, false},
		{"ns", -1, gocv.NS, DefaultRadius, false},
		{"patchmatch", 3, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			p, err := New(tt.method, tt.radius)
			if tt.err {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if p.Method != tt.want || p.Radius != tt.wantR {
				t.Errorf("New = %+v", p)
			}
		})
	}
}

// grayTile is an S×S tile of value 0.5 with one black pixel at hole, masked.
func grayTile(size, hole int) inpaint.TileInput {
	plane := size * size
	in := inpaint.TileInput{
		Size:  size,
		Image: make([]float32, 3*plane),
		Mask:  make([]float32, plane),
	}
	for i := range in.Image {
		in.Image[i] = 0.5
	}
	for c := 0; c < 3; c++ {
		in.Image[c*plane+hole] = 0
	}
	in.Mask[hole] = 1
	return in
}

func TestTransformFillsHole(t *testing.T) {
	const size = 8
	hole := 3*size + 4
	for _, method := range []string{"telea", "ns"} {
		t.Run(method, func(t *testing.T) {
			p, err := New(method, 3)
			if err != nil {
				t.Fatal(err)
			}
			out, err := p.Transform(context.Background(), grayTile(size, hole))
			if err != nil {
				t.Fatal(err)
			}
			if len(out) != 3*size*size {
				t.Fatalf("len = %d, want %d", len(out), 3*size*size)
			}
			for i, v := range out {
				if v < 0 || v > 255 {
					t.Fatalf("out[%d] = %v outside [0,255]", i, v)
				}
				// Unmasked pixels pass through; the hole takes its gray neighbours.
				if d := v - 128; d < -2 || d > 2 {
					t.Errorf("out[%d] = %v, want about 128", i, v)
				}
			}
		})
	}
}

func TestTransformErrors(t *testing.T) {
	p, err := New("", 0)
	if err != nil {
		t.Fatal(err)
	}

	bad := grayTile(4, 0)
	bad.Mask = bad.Mask[:3]
	if _, err := p.Transform(context.Background(), bad); err == nil {
		t.Error("expected size mismatch error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transform(ctx, grayTile(4, 0)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
