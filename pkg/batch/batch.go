// Package batch runs the inpainting pipeline over many images with one
// shared mask, writing results to a storage.Sink.
package batch

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PhantomInTheWire/tiled-inpaint/pkg/inpaint"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/raster"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/storage"
)

// Processor is the per-image step, satisfied by *inpaint.Pipeline.
type Processor interface {
	Process(ctx context.Context, img image.Image, mask *image.Gray) (*image.NRGBA, inpaint.Stats, error)
}

// Result is the outcome for one input.
type Result struct {
	Input   string
	Output  string
	Skipped bool
	Err     error
	Stats   inpaint.Stats
	Elapsed time.Duration
}

// Summary aggregates a run.
type Summary struct {
	Total     int
	Processed int
	Skipped   int
	Failed    int
	Location  string
	Elapsed   time.Duration
	Results   []Result
}

// Failures returns the failed results in input order.
func (s Summary) Failures() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Option configures a Runner.
type Option func(*Runner)

// WithParallel bounds how many images are in flight.
func WithParallel(n int) Option {
	return func(r *Runner) { r.parallel = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithThreshold sets the value used to count mask pixels in logs.
func WithThreshold(t uint8) Option {
	return func(r *Runner) { r.threshold = t }
}

// Runner applies one mask to a list of images.
type Runner struct {
	proc      Processor
	sink      storage.Sink
	mask      *image.Gray
	parallel  int
	threshold uint8
	log       *zap.Logger

	mu    sync.Mutex
	masks map[image.Point]*image.Gray
}

func NewRunner(proc Processor, sink storage.Sink, mask *image.Gray, opts ...Option) *Runner {
	r := &Runner{
		proc:      proc,
		sink:      sink,
		mask:      mask,
		parallel:  1,
		threshold: inpaint.DefaultThreshold,
		masks:     make(map[image.Point]*image.Gray),
	}
	for _, o := range opts {
		o(r)
	}
	if r.parallel < 1 {
		r.parallel = 1
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// maskFor returns the mask resampled to w×h, computing it once per size.
func (r *Runner) maskFor(w, h int) *image.Gray {
	key := image.Pt(w, h)
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.masks[key]; ok {
		return m
	}
	m := raster.ResizeMask(r.mask, w, h)
	r.masks[key] = m
	return m
}

// Run processes inputs. Individual failures are recorded in the summary
// and do not stop the other images. The returned error is ErrNoInputs for
// an empty list or the context error if the run was cancelled.
func (r *Runner) Run(ctx context.Context, inputs []string) (Summary, error) {
	sum := Summary{Total: len(inputs), Location: r.sink.Location()}
	if len(inputs) == 0 {
		return sum, ErrNoInputs
	}
	start := time.Now()
	results := make([]Result, len(inputs))
	sem := make(chan struct{}, r.parallel)
	var wg sync.WaitGroup

	owner := make(map[string]string, len(inputs))
	for i, in := range inputs {
		name := storage.OutputName(in)
		if first, ok := owner[name]; ok {
			results[i] = Result{Input: in, Output: name, Err: fmt.Errorf("%w: %s (%s)", ErrOutputCollision, name, first)}
			r.log.Error("failed", zap.String("image", in), zap.Error(results[i].Err))
			continue
		}
		owner[name] = in

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = Result{Input: in, Err: ctx.Err()}
			continue
		}
		wg.Add(1)
		go func(i int, in string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = r.one(ctx, i, len(inputs), in)
		}(i, in)
	}
	wg.Wait()

	sum.Results = results
	sum.Elapsed = time.Since(start)
	for _, res := range results {
		switch {
		case res.Err != nil:
			sum.Failed++
		case res.Skipped:
			sum.Skipped++
		default:
			sum.Processed++
		}
	}
	return sum, ctx.Err()
}

func (r *Runner) one(ctx context.Context, i, total int, input string) Result {
	res := Result{Input: input, Output: storage.OutputName(input)}
	log := r.log.With(zap.String("image", input), zap.String("progress", fmt.Sprintf("%d/%d", i+1, total)))
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	exists, err := r.sink.Exists(ctx, res.Output)
	if err != nil {
		res.Err = fmt.Errorf("check output: %w", err)
		log.Error("failed", zap.Error(res.Err))
		return res
	}
	if exists {
		res.Skipped = true
		log.Info("skipping, output exists", zap.String("output", res.Output))
		return res
	}

	start := time.Now()
	res.Stats, res.Err = r.process(ctx, input, res.Output, log)
	res.Elapsed = time.Since(start)
	if res.Err != nil {
		log.Error("failed", zap.Error(res.Err), zap.Duration("elapsed", res.Elapsed))
		return res
	}
	log.Info("done",
		zap.String("output", res.Output),
		zap.Int("tiles", res.Stats.Tiles),
		zap.Int("inferred", res.Stats.Inferred),
		zap.Duration("elapsed", res.Elapsed))
	return res
}

func (r *Runner) process(ctx context.Context, input, output string, log *zap.Logger) (inpaint.Stats, error) {
	img, err := raster.Open(input)
	if err != nil {
		return inpaint.Stats{}, err
	}
	b := img.Bounds()
	mask := r.maskFor(b.Dx(), b.Dy())
	log.Info("processing",
		zap.Int("width", b.Dx()),
		zap.Int("height", b.Dy()),
		zap.Int("mask_pixels", raster.Count(mask, r.threshold)))

	out, stats, err := r.proc.Process(ctx, img, mask)
	if err != nil {
		return stats, err
	}
	if err := r.sink.Save(ctx, output, out); err != nil {
		return stats, fmt.Errorf("save: %w", err)
	}
	return stats, nil
}
