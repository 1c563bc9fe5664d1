// Command inpaint fills the masked region of every image in a folder with a
// fixed-resolution inpainting model, tiling large regions.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/PhantomInTheWire/tiled-inpaint/pkg/batch"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/config"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/inpaint"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/logging"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/raster"
)

const (
	exitOK       = 0
	exitNoInputs = 1
	exitSetup    = 2
	exitFailures = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("inpaint", pflag.ContinueOnError)
	flags := config.NewFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitSetup
	}
	cfg, err := flags.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "inpaint:", err)
		return exitSetup
	}

	log, err := logging.New(logging.Options{Dev: cfg.Log.Dev, Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintln(os.Stderr, "inpaint:", err)
		return exitSetup
	}
	defer log.Sync()

	runID := os.Getenv("INPAINT_RUN_ID")
	if runID == "" {
		runID = uuid.NewString()
	}
	log = log.With(zap.String("run_id", runID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inputs, err := batch.Discover(cfg.Images)
	if err != nil {
		log.Error("no inputs", zap.String("images", cfg.Images), zap.Error(err))
		if errors.Is(err, batch.ErrNoInputs) {
			return exitNoInputs
		}
		return exitSetup
	}

	mask, err := raster.OpenMask(cfg.Mask)
	if err != nil {
		log.Error("cannot load mask", zap.String("mask", cfg.Mask), zap.Error(err))
		return exitSetup
	}

	t, closeBackend, err := newTransformer(ctx, cfg, log)
	if err != nil {
		log.Error("cannot start backend", zap.String("backend", cfg.Backend), zap.Error(err))
		return exitSetup
	}
	defer closeBackend()

	pipe, err := inpaint.New(cfg.Pipeline(), t, inpaint.WithLogger(log))
	if err != nil {
		log.Error("invalid pipeline settings", zap.Error(err))
		return exitSetup
	}

	sink, err := newSink(ctx, cfg, log)
	if err != nil {
		log.Error("cannot open output", zap.Error(err))
		return exitSetup
	}

	log.Info("starting",
		zap.Int("images", len(inputs)),
		zap.String("backend", cfg.Backend),
		zap.Int("tile_size", pipe.TileSize()),
		zap.Int("parallel", cfg.Parallel),
		zap.String("output", sink.Location()))

	runner := batch.NewRunner(pipe, sink, mask,
		batch.WithParallel(cfg.Parallel),
		batch.WithLogger(log),
		batch.WithThreshold(uint8(cfg.Threshold)))
	sum, err := runner.Run(ctx, inputs)
	printSummary(os.Stdout, sum)
	if err != nil {
		log.Warn("run interrupted", zap.Error(err))
		return exitFailures
	}
	if sum.Failed > 0 {
		return exitFailures
	}
	return exitOK
}
