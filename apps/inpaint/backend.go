package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/PhantomInTheWire/tiled-inpaint/pkg/config"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/inpaint"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/storage"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/transform/cache"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/transform/onnx"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/transform/opencv"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/transform/wasm"
)

// newTransformer starts the configured backend, optionally behind the
// Redis cache. The returned func releases everything it opened.
func newTransformer(ctx context.Context, cfg config.Config, log *zap.Logger) (inpaint.Transformer, func(), error) {
	var (
		t       inpaint.Transformer
		closers []func() error
	)
	switch cfg.Backend {
	case config.BackendONNX:
		s, err := onnx.Open(onnx.Config{ModelPath: cfg.Model, LibraryPath: cfg.ORTLibrary})
		if err != nil {
			return nil, nil, err
		}
		log.Info("model loaded", zap.String("model", cfg.Model), zap.Strings("inputs", s.Inputs()), zap.Int("size", s.TileSize()))
		t, closers = s, append(closers, s.Close)
	case config.BackendWasm:
		p, err := wasm.NewPool(cfg.Model, max(cfg.Workers, 1)*cfg.Parallel, cfg.TileSize)
		if err != nil {
			return nil, nil, err
		}
		t, closers = p, append(closers, p.Close)
	case config.BackendOpenCV:
		o, err := opencv.New(cfg.OpenCV.Method, float32(cfg.OpenCV.Radius))
		if err != nil {
			return nil, nil, err
		}
		t = o
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if cfg.Cache.Addr != "" {
		store := cache.NewRedisStore(cache.RedisConfig{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL,
		})
		if err := store.Ping(ctx); err != nil {
			log.Warn("tile cache unavailable, continuing without it", zap.String("addr", cfg.Cache.Addr), zap.Error(err))
			store.Close()
		} else {
			t = cache.Wrap(t, store, cfg.ModelID(), log)
			closers = append(closers, store.Close)
		}
	}

	return t, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("close failed", zap.Error(err))
			}
		}
	}, nil
}

func newSink(ctx context.Context, cfg config.Config, log *zap.Logger) (storage.Sink, error) {
	if cfg.S3.Bucket != "" {
		return storage.NewS3(ctx, storage.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			Quality:   cfg.Quality,
		}, log)
	}
	return storage.NewLocal(cfg.Output, cfg.Quality)
}
