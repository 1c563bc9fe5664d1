// Package onnx runs an inpainting model such as LaMa through ONNX Runtime.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/PhantomInTheWire/tiled-inpaint/pkg/inpaint"
)

// FallbackSize is used when the model leaves its spatial input size symbolic.
const FallbackSize = 512

// Config selects the model and runtime library.
type Config struct {
	ModelPath string
	// LibraryPath points at the onnxruntime shared library. Empty uses the
	// platform default lookup.
	LibraryPath string
	// Threads is the intra-op thread count; zero means runtime.NumCPU.
	Threads int
}

// Session is a loaded model. It is safe for concurrent Transform calls.
type Session struct {
	session *ort.DynamicAdvancedSession
	inputs  []string
	outputs []string
	size    int
}

var _ inpaint.Transformer = (*Session)(nil)

// Open initialises the runtime environment and loads the model. The model
// must take an image and a mask input and produce at least one output.
func Open(cfg Config) (*Session, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model not found: %w", err)
	}
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("read model info: %w", err)
	}
	if len(inputs) < 2 {
		return nil, fmt.Errorf("model must have at least 2 inputs (image, mask), found %d", len(inputs))
	}
	if len(outputs) < 1 {
		return nil, errors.New("model has no outputs")
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if err := opts.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("set threads: %w", err)
	}

	s := &Session{
		inputs:  []string{inputs[0].Name, inputs[1].Name},
		outputs: []string{outputs[0].Name},
		size:    declaredSize(inputs[0].Dimensions),
	}
	s.session, err = ort.NewDynamicAdvancedSession(cfg.ModelPath, s.inputs, s.outputs, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return s, nil
}

// declaredSize reads S from an NCHW input shape.
func declaredSize(dims ort.Shape) int {
	if len(dims) == 4 && dims[2] > 0 {
		return int(dims[2])
	}
	return FallbackSize
}

// TileSize returns the spatial input size declared by the model.
func (s *Session) TileSize() int { return s.size }

// Inputs returns the names bound to the image and mask tensors.
func (s *Session) Inputs() []string { return s.inputs }

// Transform feeds one tile through the model.
func (s *Session) Transform(ctx context.Context, in inpaint.TileInput) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := int64(in.Size)
	img, err := ort.NewTensor(ort.NewShape(1, 3, n, n), in.Image)
	if err != nil {
		return nil, fmt.Errorf("image tensor: %w", err)
	}
	defer img.Destroy()
	mask, err := ort.NewTensor(ort.NewShape(1, 1, n, n), in.Mask)
	if err != nil {
		return nil, fmt.Errorf("mask tensor: %w", err)
	}
	defer mask.Destroy()

	outs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{img, mask}, outs); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	if outs[0] == nil {
		return nil, errors.New("no output from model")
	}
	defer outs[0].Destroy()

	t, ok := outs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("invalid output tensor type")
	}
	shape := t.GetShape()
	if len(shape) != 4 || shape[1] != 3 || shape[2] != n || shape[3] != n {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
	out := make([]float32, len(t.GetData()))
	copy(out, t.GetData())
	return out, nil
}

// Close releases the session and the runtime environment.
func (s *Session) Close() error {
	if s == nil || s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	if derr := ort.DestroyEnvironment(); derr != nil && err == nil {
		err = derr
	}
	return err
}
