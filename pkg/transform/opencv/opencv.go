// Package opencv is a model-free backend built on OpenCV's classical
// inpainting. It needs no weights and is useful for smoke runs and for hosts
// without an accelerator.
package opencv

import (
	"context"
	"fmt"
	"strings"

	"gocv.io/x/gocv"

	"github.com/PhantomInTheWire/tiled-inpaint/pkg/inpaint"
)

// DefaultRadius is the neighbourhood considered around each masked pixel.
const DefaultRadius = 5

// Inpainter fills masked tile pixels with gocv.Inpaint.
type Inpainter struct {
	Radius float32
	Method gocv.InpaintMethods
}

var _ inpaint.Transformer = Inpainter{}

// New returns an Inpainter for method "telea" or "ns".
func New(method string, radius float32) (Inpainter, error) {
	if radius <= 0 {
		radius = DefaultRadius
	}
	switch strings.ToLower(method) {
	case "", "telea":
		return Inpainter{Radius: radius, Method: gocv.Telea}, nil
	case "ns":
		return Inpainter{Radius: radius, Method: gocv.NS}, nil
	}
	return Inpainter{}, fmt.Errorf("unknown opencv method %q", method)
}

// Transform converts the planar tensors to interleaved 8-bit Mats, runs
// the inpainter and converts back.
func (p Inpainter) Transform(ctx context.Context, in inpaint.TileInput) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := in.Size
	plane := n * n
	if len(in.Image) != 3*plane || len(in.Mask) != plane {
		return nil, fmt.Errorf("tensor size mismatch for %dx%d tile", n, n)
	}

	pix := make([]byte, 3*plane)
	for i := 0; i < plane; i++ {
		for c := 0; c < 3; c++ {
			pix[i*3+c] = toByte(in.Image[c*plane+i] * 255)
		}
	}
	mpix := make([]byte, plane)
	for i, v := range in.Mask {
		if v > 0.5 {
			mpix[i] = 255
		}
	}

	src, err := gocv.NewMatFromBytes(n, n, gocv.MatTypeCV8UC3, pix)
	if err != nil {
		return nil, fmt.Errorf("image mat: %w", err)
	}
	defer src.Close()
	mask, err := gocv.NewMatFromBytes(n, n, gocv.MatTypeCV8UC1, mpix)
	if err != nil {
		return nil, fmt.Errorf("mask mat: %w", err)
	}
	defer mask.Close()
	dst := gocv.NewMat()
	defer dst.Close()

	gocv.Inpaint(src, mask, &dst, p.Radius, p.Method)
	if dst.Empty() {
		return nil, fmt.Errorf("inpaint returned empty mat")
	}

	res := dst.ToBytes()
	out := make([]float32, 3*plane)
	for i := 0; i < plane; i++ {
		for c := 0; c < 3; c++ {
			out[c*plane+i] = float32(res[i*3+c])
		}
	}
	return out, nil
}

func toByte(v float32) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return byte(v + 0.5)
}
