// Package raster converts decoded images into the RGB and grayscale
// buffers the inpainting pipeline works on.
package raster

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Opaque returns a copy of img as NRGBA with every alpha value set to 255.
// Transparency is dropped, not composited.
func Opaque(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// Gray converts img to an 8-bit luma mask with its origin at (0,0).
func Gray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// ResizeMask resamples mask to w×h with nearest-neighbour so a hard edged
// mask stays hard edged. A mask that already has the size is returned as is.
func ResizeMask(mask *image.Gray, w, h int) *image.Gray {
	b := mask.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return mask
	}
	resized := imaging.Resize(mask, w, h, imaging.NearestNeighbor)
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for i := range dst.Pix {
		dst.Pix[i] = resized.Pix[i*4]
	}
	return dst
}

// Open decodes an image file and returns it as opaque NRGBA.
func Open(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return Opaque(img), nil
}

// OpenMask decodes a mask file of any colour model into grayscale.
func OpenMask(path string) (*image.Gray, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mask %s: %w", path, err)
	}
	return Gray(img), nil
}

// Count returns how many mask pixels are above threshold.
func Count(mask *image.Gray, threshold uint8) int {
	b := mask.Bounds()
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := mask.PixOffset(b.Min.X, y)
		for _, v := range mask.Pix[off : off+b.Dx()] {
			if v > threshold {
				n++
			}
		}
	}
	return n
}

// Black is the fill used for padding partial tiles.
var Black = color.NRGBA{0, 0, 0, 0xff}
