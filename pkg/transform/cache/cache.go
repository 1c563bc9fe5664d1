// Package cache memoises tile inference results. Repeated runs over the same
// image and mask hit the store instead of the model.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/PhantomInTheWire/tiled-inpaint/pkg/inpaint"
)

// Store is a byte-oriented key/value store. Get reports a miss with
// ok == false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte) error
}

// Transformer wraps another transformer with a Store. Store faults are
// logged and never fail the tile.
type Transformer struct {
	next  inpaint.Transformer
	store Store
	model string
	log   *zap.Logger
}

var _ inpaint.Transformer = (*Transformer)(nil)

// Wrap returns next decorated with store. model distinguishes entries
// produced by different weights or backends.
func Wrap(next inpaint.Transformer, store Store, model string, log *zap.Logger) *Transformer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transformer{next: next, store: store, model: model, log: log}
}

// TileSize forwards to the wrapped transformer when it declares one.
func (t *Transformer) TileSize() int {
	if s, ok := t.next.(inpaint.Sizer); ok {
		return s.TileSize()
	}
	return 0
}

func (t *Transformer) Transform(ctx context.Context, in inpaint.TileInput) ([]float32, error) {
	key := Key(t.model, in)
	if b, ok, err := t.store.Get(ctx, key); err != nil {
		t.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		if out := inpaint.DecodeFloats(b); len(out) == 3*in.Size*in.Size {
			t.log.Debug("cache hit", zap.String("key", key))
			return out, nil
		}
		t.log.Warn("cache entry has wrong size", zap.String("key", key), zap.Int("bytes", len(b)))
	}

	out, err := t.next.Transform(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := t.store.Set(ctx, key, inpaint.EncodeFloats(out)); err != nil {
		t.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return out, nil
}

// Key hashes the model id and both tensors.
func Key(model string, in inpaint.TileInput) string {
	h := md5.New()
	h.Write([]byte(model))
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(in.Size))
	h.Write(size[:])
	h.Write(inpaint.EncodeFloats(in.Image))
	h.Write(inpaint.EncodeFloats(in.Mask))
	return "tile:" + hex.EncodeToString(h.Sum(nil))
}
