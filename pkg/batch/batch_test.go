package batch

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/PhantomInTheWire/tiled-inpaint/pkg/inpaint"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/storage"
)

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	if err := imaging.Save(imaging.New(w, h, color.NRGBA{40, 80, 120, 255}), path); err != nil {
		t.Fatal(err)
	}
}

func centreMask(w, h int) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, w, h))
	for y := h / 4; y < 3*h/4; y++ {
		for x := w / 4; x < 3*w/4; x++ {
			m.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return m
}

// fakeProc paints masked pixels white and records mask sizes.
type fakeProc struct {
	mu    sync.Mutex
	sizes []image.Point
	masks map[*image.Gray]int
	fail  string
	calls atomic.Int32
}

func (f *fakeProc) Process(_ context.Context, img image.Image, mask *image.Gray) (*image.NRGBA, inpaint.Stats, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.sizes = append(f.sizes, mask.Rect.Size())
	if f.masks == nil {
		f.masks = map[*image.Gray]int{}
	}
	f.masks[mask]++
	f.mu.Unlock()

	out := imaging.Clone(img)
	if f.fail != "" {
		return nil, inpaint.Stats{}, errors.New(f.fail)
	}
	for i, v := range mask.Pix {
		if v > 128 {
			copy(out.Pix[i*4:i*4+3], []byte{255, 255, 255})
		}
	}
	return out, inpaint.Stats{Tiles: 1, Inferred: 1}, nil
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.jpg", "a.PNG", "c.webp", "d.JPEG", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := Discover(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, p := range got {
		names = append(names, filepath.Base(p))
	}
	if strings.Join(names, ",") != "a.PNG,b.jpg,c.webp,d.JPEG" {
		t.Errorf("Discover(dir) = %v", names)
	}

	got, err = Discover(filepath.Join(dir, "*.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || filepath.Base(got[0]) != "b.jpg" {
		t.Errorf("Discover(glob) = %v", got)
	}

	if _, err := Discover(filepath.Join(dir, "*.bmp")); !errors.Is(err, ErrNoInputs) {
		t.Errorf("err = %v, want ErrNoInputs", err)
	}
	if _, err := Discover(t.TempDir()); !errors.Is(err, ErrNoInputs) {
		t.Errorf("empty dir err = %v, want ErrNoInputs", err)
	}
}

func TestRunProcessesAndSkips(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "a.png"), 64, 48)
	writeImage(t, filepath.Join(in, "b.png"), 64, 48)
	writeImage(t, filepath.Join(in, "c.png"), 32, 32)

	sink, err := storage.NewLocal(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	writeImage(t, sink.Path("b.png"), 4, 4)

	proc := &fakeProc{}
	inputs, err := Discover(in)
	if err != nil {
		t.Fatal(err)
	}
	r := NewRunner(proc, sink, centreMask(16, 16), WithParallel(2))
	sum, err := r.Run(context.Background(), inputs)
	if err != nil {
		t.Fatal(err)
	}

	if sum.Total != 3 || sum.Processed != 2 || sum.Skipped != 1 || sum.Failed != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Location != sink.Location() {
		t.Errorf("location = %s", sum.Location)
	}
	if !sum.Results[1].Skipped {
		t.Error("b.png should be skipped")
	}
	if proc.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", proc.calls.Load())
	}

	out, err := imaging.Open(sink.Path("a.png"))
	if err != nil {
		t.Fatal(err)
	}
	if out.Bounds().Dx() != 64 || out.Bounds().Dy() != 48 {
		t.Errorf("output size = %v", out.Bounds())
	}
	if r, _, _, _ := out.At(32, 24).RGBA(); r>>8 != 255 {
		t.Errorf("centre not filled: %d", r>>8)
	}
	if r, _, _, _ := out.At(1, 1).RGBA(); r>>8 != 40 {
		t.Errorf("corner changed: %d", r>>8)
	}

	for _, s := range proc.sizes {
		if s != image.Pt(64, 48) && s != image.Pt(32, 32) {
			t.Errorf("mask not resized to image: %v", s)
		}
	}
}

func TestRunSharesResizedMask(t *testing.T) {
	in := t.TempDir()
	for _, n := range []string{"a.png", "b.png", "c.png"} {
		writeImage(t, filepath.Join(in, n), 40, 40)
	}
	sink, err := storage.NewLocal(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	proc := &fakeProc{}
	inputs, _ := Discover(in)
	if _, err := NewRunner(proc, sink, centreMask(10, 10), WithParallel(3)).Run(context.Background(), inputs); err != nil {
		t.Fatal(err)
	}
	if len(proc.masks) != 1 {
		t.Errorf("expected one cached mask, got %d", len(proc.masks))
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "good.png"), 16, 16)
	if err := os.WriteFile(filepath.Join(in, "broken.png"), []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	sink, err := storage.NewLocal(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	inputs, _ := Discover(in)
	sum, err := NewRunner(&fakeProc{}, sink, centreMask(16, 16)).Run(context.Background(), inputs)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 1 || sum.Failed != 1 {
		t.Errorf("summary = %+v", sum)
	}
	f := sum.Failures()
	if len(f) != 1 || filepath.Base(f[0].Input) != "broken.png" {
		t.Errorf("failures = %+v", f)
	}
	if ok, _ := sink.Exists(context.Background(), "broken.png"); ok {
		t.Error("failed image must not produce an output")
	}
}

func TestRunModelFailureWritesNothing(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "a.png"), 16, 16)
	sink, err := storage.NewLocal(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	inputs, _ := Discover(in)
	sum, err := NewRunner(&fakeProc{fail: "model crashed"}, sink, centreMask(16, 16)).Run(context.Background(), inputs)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Failed != 1 {
		t.Errorf("summary = %+v", sum)
	}
	entries, _ := os.ReadDir(sink.Location())
	if len(entries) != 0 {
		t.Errorf("output dir has %d entries", len(entries))
	}
}

func TestRunNoInputs(t *testing.T) {
	sink, err := storage.NewLocal(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewRunner(&fakeProc{}, sink, centreMask(4, 4)).Run(context.Background(), nil)
	if !errors.Is(err, ErrNoInputs) {
		t.Errorf("err = %v, want ErrNoInputs", err)
	}
}

func TestRunCancelled(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "a.png"), 8, 8)
	sink, err := storage.NewLocal(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inputs, _ := Discover(in)
	proc := &fakeProc{}
	sum, err := NewRunner(proc, sink, centreMask(8, 8)).Run(ctx, inputs)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if sum.Failed != 1 || proc.calls.Load() != 0 {
		t.Errorf("summary = %+v, calls = %d", sum, proc.calls.Load())
	}
}

// lossless 1x1 WebP
const tinyWebP = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="

func TestRunWebPBesidePNG(t *testing.T) {
	in := t.TempDir()
	writeImage(t, filepath.Join(in, "x.png"), 16, 16)
	b, err := base64.StdEncoding.DecodeString(tinyWebP)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(in, "x.webp"), b, 0o644); err != nil {
		t.Fatal(err)
	}
	sink, err := storage.NewLocal(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	inputs, err := Discover(in)
	if err != nil {
		t.Fatal(err)
	}
	sum, err := NewRunner(&fakeProc{}, sink, centreMask(16, 16), WithParallel(2)).Run(context.Background(), inputs)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 2 || sum.Skipped != 0 || sum.Failed != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	for _, name := range []string{"x.png", "x_webp.png"} {
		if ok, _ := sink.Exists(context.Background(), name); !ok {
			t.Errorf("%s not written", name)
		}
	}
}

func TestRunOutputCollision(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"day1", "day2"} {
		if err := os.Mkdir(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
		writeImage(t, filepath.Join(root, d, "a.png"), 8, 8)
	}
	sink, err := storage.NewLocal(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	inputs, err := Discover(filepath.Join(root, "*", "a.png"))
	if err != nil {
		t.Fatal(err)
	}
	proc := &fakeProc{}
	sum, err := NewRunner(proc, sink, centreMask(8, 8), WithParallel(2)).Run(context.Background(), inputs)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Processed != 1 || sum.Failed != 1 || proc.calls.Load() != 1 {
		t.Fatalf("summary = %+v, calls = %d", sum, proc.calls.Load())
	}
	if !errors.Is(sum.Results[1].Err, ErrOutputCollision) {
		t.Errorf("second input err = %v, want ErrOutputCollision", sum.Results[1].Err)
	}
}
