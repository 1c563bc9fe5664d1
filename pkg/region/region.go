// Package region finds the part of an image a mask asks to edit and grows
// it into the working crop handed to the tiler.
package region

import (
	"image"
	"math"
)

// MinPadding is the smallest context margin added around a masked box.
const MinPadding = 64

// Locate returns the tightest half-open rectangle around every mask pixel
// whose value is above threshold. ok is false when there is none.
func Locate(mask *image.Gray, threshold uint8) (box image.Rectangle, ok bool) {
	b := mask.Bounds()
	x1, y1 := b.Max.X, b.Max.Y
	x2, y2 := b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := mask.PixOffset(b.Min.X, y)
		row := mask.Pix[off : off+b.Dx()]
		first, last := -1, -1
		for i, v := range row {
			if v > threshold {
				if first < 0 {
					first = i
				}
				last = i
			}
		}
		if first < 0 {
			continue
		}
		x1 = min(x1, b.Min.X+first)
		x2 = max(x2, b.Min.X+last)
		y1 = min(y1, y)
		y2 = y
	}
	if x2 < x1 {
		return image.Rectangle{}, false
	}
	return image.Rect(x1, y1, x2+1, y2+1), true
}

// Expand grows box by frac of its own extent on every side, never by less
// than minPad pixels, and clips the result to bounds.
func Expand(box, bounds image.Rectangle, frac float64, minPad int) image.Rectangle {
	px := max(minPad, int(math.Round(float64(box.Dx())*frac)))
	py := max(minPad, int(math.Round(float64(box.Dy())*frac)))
	grown := image.Rect(box.Min.X-px, box.Min.Y-py, box.Max.X+px, box.Max.Y+py)
	return grown.Intersect(bounds)
}
