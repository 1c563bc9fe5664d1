package blend

import (
	"image"

	"github.com/disintegration/imaging"
)

// DefaultFeather is the Gaussian sigma used to soften the mask edge.
const DefaultFeather = 3.0

// Alpha blurs the crop's mask slice and returns it as weights in [0,1].
func Alpha(cropMask *image.Gray, sigma float64) []float64 {
	blurred := imaging.Blur(cropMask, sigma)
	alpha := make([]float64, len(blurred.Pix)/4)
	for i := range alpha {
		alpha[i] = float64(blurred.Pix[i*4]) / 255
	}
	return alpha
}

// Composite returns a copy of orig with blended mixed in over crop using a
// feathered version of cropMask. Pixels outside crop are copied unchanged.
func Composite(orig, blended *image.NRGBA, crop image.Rectangle, cropMask *image.Gray, sigma float64) *image.NRGBA {
	out := imaging.Clone(orig)
	alpha := Alpha(cropMask, sigma)
	cw := crop.Dx()
	ob := orig.Bounds()
	for y := 0; y < crop.Dy(); y++ {
		for x := 0; x < cw; x++ {
			a := alpha[y*cw+x]
			if a == 0 {
				continue
			}
			oi := out.PixOffset(crop.Min.X-ob.Min.X+x, crop.Min.Y-ob.Min.Y+y)
			bi := blended.PixOffset(blended.Rect.Min.X+x, blended.Rect.Min.Y+y)
			for c := 0; c < 3; c++ {
				o := float64(out.Pix[oi+c])
				v := float64(blended.Pix[bi+c])
				out.Pix[oi+c] = clampByte(o*(1-a) + v*a)
			}
		}
	}
	return out
}
