package split

import (
	"gonum.org/v1/gonum/mat"
)

// Taper returns the 1-D edge ramp used along both axes of a tile.
// Entry i is multiplied by (k+1)/overlap for every edge it lies within k
// pixels of; entries further than overlap from both edges stay 1.
func Taper(size, overlap int) []float64 {
	t := make([]float64, size)
	for i := range t {
		t[i] = 1
	}
	for i := 0; i < overlap && i < size; i++ {
		f := float64(i+1) / float64(overlap)
		t[i] *= f
		t[size-1-i] *= f
	}
	return t
}

// Weights builds the size×size blending field for overlapping tiles. The
// field is separable, so it is the outer product of Taper with itself:
// corners get the product of the horizontal and vertical ramps.
func Weights(size, overlap int) *mat.Dense {
	t := mat.NewVecDense(size, Taper(size, overlap))
	w := mat.NewDense(size, size, nil)
	w.Outer(1, t, t)
	return w
}
