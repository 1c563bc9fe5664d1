// Package storage writes finished images to a local directory or an S3
// compatible bucket.
package storage

import (
	"context"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// DefaultQuality is the JPEG quality used for .jpg/.jpeg outputs.
const DefaultQuality = 92

// Sink is the destination of a batch. Names are base file names as
// returned by OutputName.
type Sink interface {
	Exists(ctx context.Context, name string) (bool, error)
	Save(ctx context.Context, name string, img image.Image) error
	// Location describes where outputs go, for logs and summaries.
	Location() string
}

// OutputName maps an input path to the output file name. Inputs in a
// format imaging cannot encode (webp) are written as PNG with the old
// extension kept in the stem, so x.webp becomes x_webp.png and cannot clash
// with a sibling x.png.
func OutputName(input string) string {
	base := filepath.Base(input)
	if _, err := imaging.FormatFromFilename(base); err == nil {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext != "" {
		stem += "_" + strings.TrimPrefix(ext, ".")
	}
	return stem + ".png"
}

func encode(w io.Writer, name string, img image.Image, quality int) error {
	f, err := imaging.FormatFromFilename(name)
	if err != nil {
		return fmt.Errorf("output format: %w", err)
	}
	if quality <= 0 {
		quality = DefaultQuality
	}
	return imaging.Encode(w, img, f, imaging.JPEGQuality(quality))
}

func contentType(name string) string {
	f, err := imaging.FormatFromFilename(name)
	if err != nil {
		return "application/octet-stream"
	}
	switch f {
	case imaging.JPEG:
		return "image/jpeg"
	case imaging.PNG:
		return "image/png"
	case imaging.GIF:
		return "image/gif"
	case imaging.TIFF:
		return "image/tiff"
	case imaging.BMP:
		return "image/bmp"
	}
	return "application/octet-stream"
}
