package inpaint

import (
	"context"
	"errors"
	"fmt"
)

// TileInput is one padded tile in model layout.
type TileInput struct {
	// Size is the tile edge S.
	Size int
	// Image holds 3×S×S channel-first RGB values in [0,1].
	Image []float32
	// Mask holds S×S values, 1 where the tile should be filled.
	Mask []float32
}

// Transformer runs the inpainting model on one tile. It returns 3×S×S
// channel-first values nominally in [0,255]; the pipeline clips them.
// Implementations must be safe for concurrent use.
type Transformer interface {
	Transform(ctx context.Context, in TileInput) ([]float32, error)
}

// Sizer is implemented by transformers whose model declares its input size.
type Sizer interface {
	TileSize() int
}

// TransformFunc adapts a function to Transformer.
type TransformFunc func(ctx context.Context, in TileInput) ([]float32, error)

func (f TransformFunc) Transform(ctx context.Context, in TileInput) ([]float32, error) {
	return f(ctx, in)
}

// ErrTransform marks a failed model call. It is fatal for the image.
var ErrTransform = errors.New("inpaint: transform failed")

// TransformError records which tile failed.
type TransformError struct {
	Tile int
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("inpaint: transform failed on tile %d: %v", e.Tile, e.Err)
}

func (e *TransformError) Unwrap() []error {
	return []error{ErrTransform, e.Err}
}
