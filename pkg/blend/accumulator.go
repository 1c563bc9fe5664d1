// Package blend merges overlapping tile results into one crop and that
// crop back into the full image.
package blend

import (
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Epsilon floors the weight sum so untouched pixels divide cleanly.
const Epsilon = 1e-8

// Accumulator keeps a weighted running sum of tile pixels over a crop.
// It is not safe for concurrent use.
type Accumulator struct {
	w, h   int
	sum    [3][]float64
	weight []float64
	row    []float64
}

// NewAccumulator returns zeroed buffers for a w×h crop.
func NewAccumulator(w, h int) *Accumulator {
	a := &Accumulator{w: w, h: h, weight: make([]float64, w*h)}
	for c := range a.sum {
		a.sum[c] = make([]float64, w*h)
	}
	return a
}

// Add folds the top-left tw×th window of tile into the crop at (x0,y0),
// each pixel scaled by the matching entry of weights.
func (a *Accumulator) Add(tile *image.NRGBA, weights *mat.Dense, x0, y0, tw, th int) {
	if cap(a.row) < tw {
		a.row = make([]float64, tw)
	}
	row := a.row[:tw]
	for py := 0; py < th; py++ {
		wr := weights.RawRowView(py)[:tw]
		src := tile.Pix[tile.PixOffset(tile.Rect.Min.X, tile.Rect.Min.Y+py):]
		dst := (y0+py)*a.w + x0
		for c := 0; c < 3; c++ {
			for px := range row {
				row[px] = float64(src[px*4+c])
			}
			floats.Mul(row, wr)
			floats.Add(a.sum[c][dst:dst+tw], row)
		}
		floats.Add(a.weight[dst:dst+tw], wr)
	}
}

// MinWeight returns the smallest accumulated weight in the crop.
func (a *Accumulator) MinWeight() float64 {
	return floats.Min(a.weight)
}

// Result divides the sums by the weights and returns the blended crop.
func (a *Accumulator) Result() *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, a.w, a.h))
	for i, wt := range a.weight {
		d := math.Max(wt, Epsilon)
		p := dst.Pix[i*4 : i*4+4]
		p[0] = clampByte(a.sum[0][i] / d)
		p[1] = clampByte(a.sum[1][i] / d)
		p[2] = clampByte(a.sum[2][i] / d)
		p[3] = 0xff
	}
	return dst
}

func clampByte(v float64) uint8 {
	v = math.Round(v)
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}
