package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every variable read by ApplyEnv.
const EnvPrefix = "INPAINT_"

// LoadDotEnv reads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overlays INPAINT_* variables onto c. Unparseable values are
// ignored.
func ApplyEnv(c *Config) {
	c.Images = getEnv("IMAGES", c.Images)
	c.Mask = getEnv("MASK", c.Mask)
	c.Model = getEnv("MODEL", c.Model)
	c.Output = getEnv("OUTPUT", c.Output)
	c.Backend = getEnv("BACKEND", c.Backend)

	c.TileSize = getEnvInt("SIZE", c.TileSize)
	c.Overlap = getEnvFloat("OVERLAP", c.Overlap)
	c.Padding = getEnvFloat("PADDING", c.Padding)
	c.MinPadding = getEnvInt("MIN_PADDING", c.MinPadding)
	c.Threshold = getEnvInt("THRESHOLD", c.Threshold)
	c.Feather = getEnvFloat("FEATHER", c.Feather)
	c.Workers = getEnvInt("WORKERS", c.Workers)
	c.Parallel = getEnvInt("PARALLEL", c.Parallel)
	c.Quality = getEnvInt("QUALITY", c.Quality)

	c.ORTLibrary = getEnv("ORT_LIBRARY", c.ORTLibrary)
	c.OpenCV.Method = getEnv("OPENCV_METHOD", c.OpenCV.Method)
	c.OpenCV.Radius = getEnvFloat("OPENCV_RADIUS", c.OpenCV.Radius)

	c.Log.File = getEnv("LOG_FILE", c.Log.File)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Dev = getEnvBool("DEV", c.Log.Dev)

	c.Cache.Addr = getEnv("REDIS_ADDR", c.Cache.Addr)
	c.Cache.Password = getEnv("REDIS_PASSWORD", c.Cache.Password)
	c.Cache.DB = getEnvInt("REDIS_DB", c.Cache.DB)
	c.Cache.TTL = getEnvDuration("CACHE_TTL", c.Cache.TTL)

	c.S3.Endpoint = getEnv("S3_ENDPOINT", c.S3.Endpoint)
	c.S3.Region = getEnv("S3_REGION", c.S3.Region)
	c.S3.AccessKey = getEnv("S3_ACCESS_KEY", c.S3.AccessKey)
	c.S3.SecretKey = getEnv("S3_SECRET_KEY", c.S3.SecretKey)
	c.S3.Bucket = getEnv("S3_BUCKET", c.S3.Bucket)
	c.S3.Prefix = getEnv("S3_PREFIX", c.S3.Prefix)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvPrefix + key))) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90m") or plain seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if s, err := strconv.Atoi(v); err == nil {
		return time.Duration(s) * time.Second
	}
	return fallback
}
