package inpaint

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"
)

// NeedsInference reports whether any mask pixel is above threshold. Tiles
// that fail it keep their original pixels and skip the model.
func NeedsInference(mask *image.Gray, threshold uint8) bool {
	b := mask.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := mask.PixOffset(b.Min.X, y)
		for _, v := range mask.Pix[off : off+b.Dx()] {
			if v > threshold {
				return true
			}
		}
	}
	return false
}

// NewTileInput converts a size×size tile and mask into model layout.
func NewTileInput(tile *image.NRGBA, mask *image.Gray, threshold uint8) TileInput {
	s := tile.Rect.Dx()
	plane := s * s
	in := TileInput{
		Size:  s,
		Image: make([]float32, 3*plane),
		Mask:  make([]float32, plane),
	}
	for y := 0; y < s; y++ {
		src := tile.Pix[y*tile.Stride:]
		m := mask.Pix[y*mask.Stride:]
		for x := 0; x < s; x++ {
			i := y*s + x
			in.Image[i] = float32(src[x*4]) / 255
			in.Image[plane+i] = float32(src[x*4+1]) / 255
			in.Image[2*plane+i] = float32(src[x*4+2]) / 255
			if m[x] > threshold {
				in.Mask[i] = 1
			}
		}
	}
	return in
}

// TileOutput clips a 3×size×size model output into an opaque image.
func TileOutput(out []float32, size int) (*image.NRGBA, error) {
	plane := size * size
	if len(out) != 3*plane {
		return nil, fmt.Errorf("output has %d values, want %d", len(out), 3*plane)
	}
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < plane; i++ {
		p := img.Pix[i*4 : i*4+4]
		p[0] = clip(out[i])
		p[1] = clip(out[plane+i])
		p[2] = clip(out[2*plane+i])
		p[3] = 0xff
	}
	return img, nil
}

func clip(v float32) uint8 {
	f := math.Round(float64(v))
	switch {
	case f <= 0 || math.IsNaN(f):
		return 0
	case f >= 255:
		return 255
	}
	return uint8(f)
}

// EncodeFloats packs v as little-endian float32.
func EncodeFloats(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

// DecodeFloats is the inverse of EncodeFloats. A trailing partial value is
// dropped.
func DecodeFloats(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
