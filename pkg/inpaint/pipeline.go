// Package inpaint applies a fixed-resolution inpainting model to images of
// any size. It crops around the mask, splits the crop into overlapping
// tiles, runs the model on the tiles that need it, feathers the tiles back
// together and composites the crop into the original image.
package inpaint

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"

	"github.com/PhantomInTheWire/tiled-inpaint/pkg/blend"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/raster"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/region"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/split"
)

// Stats describes what Process did with one image.
type Stats struct {
	Empty     bool
	Crop      image.Rectangle
	Single    bool
	Tiles     int
	Inferred  int
	Skipped   int
	MinWeight float64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for per-tile progress.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithProgress registers a callback invoked after every finished tile.
func WithProgress(fn func(done, total int)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// Pipeline holds the model and settings shared by every image of a run.
// Process may be called from several goroutines at once.
type Pipeline struct {
	cfg      Config
	t        Transformer
	tileSize int
	overlap  int
	log      *zap.Logger
	progress func(done, total int)
}

// New validates cfg and resolves the tile size: the configured value wins,
// then the size the model declares, then DefaultTileSize.
func New(cfg Config, t Transformer, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: nil transformer", ErrConfig)
	}
	p := &Pipeline{cfg: cfg, t: t, log: zap.NewNop()}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	p.tileSize = cfg.TileSize
	if p.tileSize == 0 {
		if s, ok := t.(Sizer); ok && s.TileSize() > 0 {
			p.tileSize = s.TileSize()
		} else {
			p.tileSize = DefaultTileSize
		}
	}
	p.overlap = split.Overlap(p.tileSize, cfg.OverlapFrac)
	if p.cfg.Workers < 1 {
		p.cfg.Workers = 1
	}
	return p, nil
}

// TileSize returns the resolved tile edge.
func (p *Pipeline) TileSize() int { return p.tileSize }

// Process inpaints img where mask is above the threshold and returns a new
// image. img is not modified. A mask of another size is resampled with
// nearest-neighbour first. An empty mask returns an unchanged copy.
func (p *Pipeline) Process(ctx context.Context, img image.Image, mask *image.Gray) (*image.NRGBA, Stats, error) {
	if img == nil || mask == nil {
		return nil, Stats{}, fmt.Errorf("%w: nil image or mask", ErrConfig)
	}
	src := raster.Opaque(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	mask = raster.ResizeMask(raster.Gray(mask), w, h)

	box, ok := region.Locate(mask, p.cfg.Threshold)
	if !ok {
		return src, Stats{Empty: true}, nil
	}
	crop := region.Expand(box, src.Rect, p.cfg.PaddingFrac, p.cfg.MinPadding)
	cropImg := imaging.Crop(src, crop)
	cropMask := raster.Gray(mask.SubImage(crop))
	cw, ch := crop.Dx(), crop.Dy()

	layout := split.Grid(cw, ch, p.tileSize, p.overlap)
	stats := Stats{Crop: crop, Single: layout.Single, Tiles: len(layout.Tiles)}
	p.log.Debug("crop selected",
		zap.Stringer("mask_box", box),
		zap.Stringer("crop", crop),
		zap.Int("tiles_x", layout.TilesX),
		zap.Int("tiles_y", layout.TilesY))

	tiles, inferred, err := p.runTiles(ctx, cropImg, cropMask, layout)
	if err != nil {
		return nil, stats, err
	}
	stats.Inferred = inferred
	stats.Skipped = stats.Tiles - inferred

	var blended *image.NRGBA
	if layout.Single {
		blended = imaging.Crop(tiles[0], image.Rect(0, 0, cw, ch))
		stats.MinWeight = 1
	} else {
		weights := split.Weights(p.tileSize, p.overlap)
		acc := blend.NewAccumulator(cw, ch)
		for i, t := range layout.Tiles {
			acc.Add(tiles[i], weights, t.X, t.Y, t.W, t.H)
		}
		blended = acc.Result()
		stats.MinWeight = acc.MinWeight()
	}

	return blend.Composite(src, blended, crop, cropMask, p.cfg.Feather), stats, nil
}

type tileResult struct {
	index    int
	img      *image.NRGBA
	inferred bool
	err      error
}

// runTiles transforms every tile on a bounded worker pool and returns the
// results indexed like layout.Tiles. The first failure cancels the rest.
func (p *Pipeline) runTiles(ctx context.Context, crop *image.NRGBA, cropMask *image.Gray, layout split.Layout) ([]*image.NRGBA, int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	total := len(layout.Tiles)
	tasks := make(chan split.Tile)
	results := make(chan tileResult)

	var wg sync.WaitGroup
	for n := min(p.cfg.Workers, total); n > 0; n-- {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				r := p.runTile(ctx, crop, cropMask, t)
				select {
				case results <- r:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(tasks)
		for _, t := range layout.Tiles {
			select {
			case tasks <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]*image.NRGBA, total)
	var firstErr error
	done, inferred := 0, 0
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
				cancel()
			}
			continue
		}
		out[r.index] = r.img
		done++
		if r.inferred {
			inferred++
		}
		if total > 1 {
			p.log.Info("tile done",
				zap.Int("tile", done),
				zap.Int("total", total),
				zap.Bool("skipped", !r.inferred))
		}
		if p.progress != nil {
			p.progress(done, total)
		}
	}
	if firstErr != nil {
		return nil, 0, firstErr
	}
	if done != total {
		return nil, 0, fmt.Errorf("inpaint: %d of %d tiles finished: %w", done, total, ctx.Err())
	}
	return out, inferred, nil
}

// runTile pads one tile to the model size and transforms it unless its
// mask is empty, in which case the padded original is the result.
func (p *Pipeline) runTile(ctx context.Context, crop *image.NRGBA, cropMask *image.Gray, t split.Tile) tileResult {
	ts := p.tileSize
	tile := imaging.Paste(imaging.New(ts, ts, raster.Black), imaging.Crop(crop, t.Rect()), image.Point{})
	mask := image.NewGray(image.Rect(0, 0, ts, ts))
	xdraw.Draw(mask, image.Rect(0, 0, t.W, t.H), cropMask, t.Rect().Min, xdraw.Src)

	if !NeedsInference(mask, p.cfg.Threshold) {
		return tileResult{index: t.Index, img: tile}
	}

	raw, err := p.t.Transform(ctx, NewTileInput(tile, mask, p.cfg.Threshold))
	if err != nil {
		return tileResult{index: t.Index, err: &TransformError{Tile: t.Index, Err: err}}
	}
	img, err := TileOutput(raw, ts)
	if err != nil {
		return tileResult{index: t.Index, err: &TransformError{Tile: t.Index, Err: err}}
	}
	return tileResult{index: t.Index, img: img, inferred: true}
}
