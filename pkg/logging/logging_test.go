package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewJSONConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Console: &buf})
	if err != nil {
		t.Fatal(err)
	}
	log.Debug("hidden")
	log.Info("processed", zap.String("image", "cat.jpg"))
	_ = log.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("console line is not JSON: %v", err)
	}
	if entry["msg"] != "processed" || entry["image"] != "cat.jpg" || entry["level"] != "info" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestNewDevIncludesDebug(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Dev: true, Console: &buf})
	if err != nil {
		t.Fatal(err)
	}
	log.Debug("tile done", zap.Int("tile", 3))
	_ = log.Sync()
	if !strings.Contains(buf.String(), "tile done") {
		t.Errorf("debug entry missing: %q", buf.String())
	}
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inpaint.log")
	var buf bytes.Buffer
	log, err := New(Options{Console: &buf, File: path})
	if err != nil {
		t.Fatal(err)
	}
	log.Warn("slow image", zap.Duration("elapsed", 0))
	_ = log.Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"msg":"slow image"`) {
		t.Errorf("file content = %q", b)
	}
	if !strings.Contains(buf.String(), "slow image") {
		t.Error("console should receive the entry too")
	}
}

func TestNewLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Console: &buf, Level: "warn"})
	if err != nil {
		t.Fatal(err)
	}
	log.Info("quiet")
	_ = log.Sync()
	if buf.Len() != 0 {
		t.Errorf("info should be filtered: %q", buf.String())
	}

	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}
