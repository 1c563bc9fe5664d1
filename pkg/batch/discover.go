package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoInputs is returned when discovery finds nothing to process.
var ErrNoInputs = errors.New("batch: no input images found")

// ErrOutputCollision marks an input whose output name is already taken by
// an earlier input of the same run.
var ErrOutputCollision = errors.New("batch: output name already used by another input")

// extensions picked up when the input is a directory. Matching ignores case.
var extensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// IsImage reports whether path has a supported image extension.
func IsImage(path string) bool {
	return extensions[strings.ToLower(filepath.Ext(path))]
}

// Discover lists the inputs named by pattern, sorted. A directory yields
// its image files (not recursive); anything else is treated as a glob.
func Discover(pattern string) ([]string, error) {
	var paths []string
	if info, err := os.Stat(pattern); err == nil && info.IsDir() {
		entries, err := os.ReadDir(pattern)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", pattern, err)
		}
		for _, e := range entries {
			if e.IsDir() || !IsImage(e.Name()) {
				continue
			}
			paths = append(paths, filepath.Join(pattern, e.Name()))
		}
	} else {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
				paths = append(paths, m)
			}
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInputs, pattern)
	}
	sort.Strings(paths)
	return paths, nil
}
