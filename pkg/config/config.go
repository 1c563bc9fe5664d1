// Package config loads batch settings from a YAML file, the environment
// and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PhantomInTheWire/tiled-inpaint/pkg/blend"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/inpaint"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/region"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/storage"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// Backends accepted by Config.Backend.
const (
	BackendONNX   = "onnx"
	BackendWasm   = "wasm"
	BackendOpenCV = "opencv"
)

type Config struct {
	Images  string `yaml:"images"`
	Mask    string `yaml:"mask"`
	Model   string `yaml:"model"`
	Output  string `yaml:"output"`
	Backend string `yaml:"backend"`

	TileSize   int     `yaml:"size"`
	Overlap    float64 `yaml:"overlap"`
	Padding    float64 `yaml:"padding"`
	MinPadding int     `yaml:"min_padding"`
	Threshold  int     `yaml:"threshold"`
	Feather    float64 `yaml:"feather"`
	Workers    int     `yaml:"workers"`
	Parallel   int     `yaml:"parallel"`
	Quality    int     `yaml:"quality"`

	ORTLibrary string       `yaml:"ort_library"`
	OpenCV     OpenCVConfig `yaml:"opencv"`
	Log        LogConfig    `yaml:"log"`
	Cache      CacheConfig  `yaml:"cache"`
	S3         S3Config     `yaml:"s3"`
}

type OpenCVConfig struct {
	Method string  `yaml:"method"`
	Radius float64 `yaml:"radius"`
}

type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
	Dev   bool   `yaml:"dev"`
}

// CacheConfig enables the Redis tile cache when Addr is set.
type CacheConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// S3Config switches output to a bucket when Bucket is set.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Output:     "output",
		Backend:    BackendONNX,
		Overlap:    inpaint.DefaultOverlap,
		Padding:    inpaint.DefaultPadding,
		MinPadding: region.MinPadding,
		Threshold:  inpaint.DefaultThreshold,
		Feather:    blend.DefaultFeather,
		Workers:    runtime.NumCPU(),
		Parallel:   1,
		Quality:    storage.DefaultQuality,
		OpenCV:     OpenCVConfig{Method: "telea", Radius: 5},
		Cache:      CacheConfig{TTL: 24 * time.Hour},
		S3:         S3Config{Region: "us-east-1"},
	}
}

// LoadFile overlays the YAML file at path onto c. Keys absent from the
// file keep their current values.
func LoadFile(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Validate reports the first bad field.
func (c Config) Validate() error {
	var problem string
	switch {
	case c.Images == "":
		problem = "images is required"
	case c.Mask == "":
		problem = "mask is required"
	case c.Output == "" && c.S3.Bucket == "":
		problem = "output directory or s3 bucket is required"
	case c.Backend != BackendONNX && c.Backend != BackendWasm && c.Backend != BackendOpenCV:
		problem = fmt.Sprintf("unknown backend %q", c.Backend)
	case c.Backend != BackendOpenCV && c.Model == "":
		problem = fmt.Sprintf("backend %s needs a model", c.Backend)
	case c.TileSize < 0:
		problem = fmt.Sprintf("size %d is negative", c.TileSize)
	case c.Overlap < 0 || c.Overlap >= 1:
		problem = fmt.Sprintf("overlap %v not in [0,1)", c.Overlap)
	case c.Padding < 0:
		problem = fmt.Sprintf("padding %v is negative", c.Padding)
	case c.MinPadding < 0:
		problem = fmt.Sprintf("min padding %d is negative", c.MinPadding)
	case c.Threshold < 0 || c.Threshold > 255:
		problem = fmt.Sprintf("threshold %d not in [0,255]", c.Threshold)
	case c.Feather < 0:
		problem = fmt.Sprintf("feather %v is negative", c.Feather)
	case c.Workers < 0:
		problem = fmt.Sprintf("workers %d is negative", c.Workers)
	case c.Parallel < 1:
		problem = fmt.Sprintf("parallel %d must be at least 1", c.Parallel)
	case c.Quality < 1 || c.Quality > 100:
		problem = fmt.Sprintf("quality %d not in [1,100]", c.Quality)
	case strings.ToLower(c.OpenCV.Method) != "telea" && strings.ToLower(c.OpenCV.Method) != "ns":
		problem = fmt.Sprintf("unknown opencv method %q", c.OpenCV.Method)
	}
	if problem != "" {
		return fmt.Errorf("%w: %s", ErrInvalid, problem)
	}
	return nil
}

// Pipeline projects the settings that shape one image's processing.
func (c Config) Pipeline() inpaint.Config {
	return inpaint.Config{
		TileSize:    c.TileSize,
		OverlapFrac: c.Overlap,
		PaddingFrac: c.Padding,
		MinPadding:  c.MinPadding,
		Threshold:   uint8(c.Threshold),
		Feather:     c.Feather,
		Workers:     c.Workers,
	}
}

// ModelID names the weights for cache keys.
func (c Config) ModelID() string {
	switch c.Backend {
	case BackendOpenCV:
		return fmt.Sprintf("opencv-%s-%g", strings.ToLower(c.OpenCV.Method), c.OpenCV.Radius)
	}
	return c.Backend + ":" + c.Model
}
