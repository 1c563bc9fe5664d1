package config

import (
	"github.com/spf13/pflag"
)

// Flags binds the command line. Only flags the user actually set override
// the file and environment.
type Flags struct {
	fs   *pflag.FlagSet
	v    Config
	file string
	env  string
}

// NewFlags registers the batch flags on fs.
func NewFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs, v: Default()}
	fs.StringVar(&f.file, "config", "", "YAML config file")
	fs.StringVar(&f.env, "env-file", ".env", "dotenv file loaded into the environment")

	fs.StringVar(&f.v.Images, "images", f.v.Images, "input folder or glob pattern")
	fs.StringVar(&f.v.Mask, "mask", f.v.Mask, "mask image, white marks pixels to fill")
	fs.StringVar(&f.v.Model, "model", f.v.Model, "model file (.onnx or .wasm)")
	fs.StringVar(&f.v.Output, "output", f.v.Output, "output folder")
	fs.StringVar(&f.v.Backend, "backend", f.v.Backend, "onnx, wasm or opencv")
	fs.IntVar(&f.v.TileSize, "size", f.v.TileSize, "tile size, 0 detects it from the model")
	fs.Float64Var(&f.v.Overlap, "overlap", f.v.Overlap, "tile overlap fraction")
	fs.Float64Var(&f.v.Padding, "padding", f.v.Padding, "context padding fraction")
	fs.IntVar(&f.v.MinPadding, "min-padding", f.v.MinPadding, "minimum context padding in pixels")
	fs.IntVar(&f.v.Threshold, "threshold", f.v.Threshold, "mask values above this are filled")
	fs.Float64Var(&f.v.Feather, "feather", f.v.Feather, "composite feather sigma")
	fs.IntVar(&f.v.Workers, "workers", f.v.Workers, "concurrent tile inferences per image")
	fs.IntVar(&f.v.Parallel, "parallel", f.v.Parallel, "images processed at once")
	fs.IntVar(&f.v.Quality, "quality", f.v.Quality, "JPEG output quality")
	fs.StringVar(&f.v.ORTLibrary, "ort-library", f.v.ORTLibrary, "onnxruntime shared library path")
	fs.StringVar(&f.v.Log.File, "log-file", f.v.Log.File, "also write JSON logs to this file")
	fs.BoolVar(&f.v.Log.Dev, "dev", f.v.Log.Dev, "human readable debug logging")
	fs.StringVar(&f.v.Cache.Addr, "redis", f.v.Cache.Addr, "redis address for the tile cache")
	fs.StringVar(&f.v.S3.Bucket, "s3-bucket", f.v.S3.Bucket, "upload outputs to this bucket")
	fs.StringVar(&f.v.S3.Endpoint, "s3-endpoint", f.v.S3.Endpoint, "S3 endpoint, e.g. MinIO")
	return f
}

// Load resolves defaults, the config file, .env, INPAINT_* variables and
// set flags, then validates.
func (f *Flags) Load() (Config, error) {
	c := Default()
	if f.file != "" {
		if err := LoadFile(f.file, &c); err != nil {
			return c, err
		}
	}
	if err := LoadDotEnv(f.env); err != nil {
		return c, err
	}
	ApplyEnv(&c)
	f.fs.Visit(func(fl *pflag.Flag) {
		f.apply(fl.Name, &c)
	})
	return c, c.Validate()
}

func (f *Flags) apply(name string, c *Config) {
	switch name {
	case "images":
		c.Images = f.v.Images
	case "mask":
		c.Mask = f.v.Mask
	case "model":
		c.Model = f.v.Model
	case "output":
		c.Output = f.v.Output
	case "backend":
		c.Backend = f.v.Backend
	case "size":
		c.TileSize = f.v.TileSize
	case "overlap":
		c.Overlap = f.v.Overlap
	case "padding":
		c.Padding = f.v.Padding
	case "min-padding":
		c.MinPadding = f.v.MinPadding
	case "threshold":
		c.Threshold = f.v.Threshold
	case "feather":
		c.Feather = f.v.Feather
	case "workers":
		c.Workers = f.v.Workers
	case "parallel":
		c.Parallel = f.v.Parallel
	case "quality":
		c.Quality = f.v.Quality
	case "ort-library":
		c.ORTLibrary = f.v.ORTLibrary
	case "log-file":
		c.Log.File = f.v.Log.File
	case "dev":
		c.Log.Dev = f.v.Log.Dev
	case "redis":
		c.Cache.Addr = f.v.Cache.Addr
	case "s3-bucket":
		c.S3.Bucket = f.v.S3.Bucket
	case "s3-endpoint":
		c.S3.Endpoint = f.v.S3.Endpoint
	}
}
