package inpaint

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/PhantomInTheWire/tiled-inpaint/pkg/blend"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/region"
)

// Defaults shared with the CLI.
const (
	DefaultTileSize  = 512
	DefaultOverlap   = 0.25
	DefaultPadding   = 0.5
	DefaultThreshold = 128
)

// ErrConfig is wrapped by every Config validation failure.
var ErrConfig = errors.New("inpaint: invalid config")

// Config is the immutable parameter set for one Pipeline.
type Config struct {
	// TileSize is the square model resolution. Zero means ask the
	// transformer, then fall back to DefaultTileSize.
	TileSize int
	// OverlapFrac is the share of a tile shared with its neighbour, in [0,1).
	OverlapFrac float64
	// PaddingFrac grows the mask box by this share of its extent per side.
	PaddingFrac float64
	// MinPadding is the context floor in pixels.
	MinPadding int
	// Threshold: mask values strictly above it are inpainted.
	Threshold uint8
	// Feather is the Gaussian sigma of the composite alpha.
	Feather float64
	// Workers bounds concurrent transform calls per image.
	Workers int
}

// DefaultConfig returns the settings used by the batch tool.
func DefaultConfig() Config {
	return Config{
		OverlapFrac: DefaultOverlap,
		PaddingFrac: DefaultPadding,
		MinPadding:  region.MinPadding,
		Threshold:   DefaultThreshold,
		Feather:     blend.DefaultFeather,
		Workers:     runtime.NumCPU(),
	}
}

// Validate reports the first out-of-range field.
func (c Config) Validate() error {
	switch {
	case c.TileSize < 0:
		return fmt.Errorf("%w: tile size %d", ErrConfig, c.TileSize)
	case c.OverlapFrac < 0 || c.OverlapFrac >= 1:
		return fmt.Errorf("%w: overlap %v not in [0,1)", ErrConfig, c.OverlapFrac)
	case c.PaddingFrac < 0:
		return fmt.Errorf("%w: padding %v", ErrConfig, c.PaddingFrac)
	case c.MinPadding < 0:
		return fmt.Errorf("%w: min padding %d", ErrConfig, c.MinPadding)
	case c.Feather < 0:
		return fmt.Errorf("%w: feather %v", ErrConfig, c.Feather)
	}
	return nil
}
