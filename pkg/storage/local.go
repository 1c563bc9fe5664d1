package storage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
)

// Local writes into a directory. Files appear atomically: a crash leaves
// at most a hidden temp file, never a truncated output.
type Local struct {
	dir     string
	quality int
}

var _ Sink = (*Local)(nil)

// NewLocal creates dir if needed.
func NewLocal(dir string, quality int) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Local{dir: dir, quality: quality}, nil
}

func (l *Local) Location() string { return l.dir }

// Path returns the full path for name.
func (l *Local) Path(name string) string { return filepath.Join(l.dir, name) }

func (l *Local) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(l.Path(name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	}
	return false, err
}

func (l *Local) Save(ctx context.Context, name string, img image.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(l.dir, ".tmp-*-"+name)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, name, img, l.quality); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), l.Path(name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
