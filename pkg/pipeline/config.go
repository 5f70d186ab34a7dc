package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Options is the altair.toml project configuration.
type Options struct {
	Optimize OptimizeOptions `toml:"optimize"`
	Cache    CacheOptions    `toml:"cache"`

	// Dir is the directory containing the altair.toml file (set at load time).
	Dir string `toml:"-"`
}

// OptimizeOptions toggles individual passes. Every pass defaults to on;
// the toggles exist for debugging miscompares pass by pass.
type OptimizeOptions struct {
	Tree   bool `toml:"tree"`   // constant folding and the printf rewrite
	Loads  bool `toml:"loads"`  // definite-assignment load rewriting
	Stores bool `toml:"stores"` // dead store elimination
}

// CacheOptions configures the compiled-code cache.
type CacheOptions struct {
	Path string `toml:"path"`
}

// DefaultOptions returns the configuration used when no altair.toml exists.
func DefaultOptions() Options {
	return Options{
		Optimize: OptimizeOptions{Tree: true, Loads: true, Stores: true},
	}
}

// LoadOptions parses an altair.toml file from the given directory. A
// missing file is not an error; defaults apply.
func LoadOptions(dir string) (Options, error) {
	opts := DefaultOptions()

	path := filepath.Join(dir, "altair.toml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		opts.Dir = dir
		return opts, nil
	}
	if err != nil {
		return opts, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("parse error in %s: %w", path, err)
	}
	opts.Dir, err = filepath.Abs(dir)
	if err != nil {
		return opts, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return opts, nil
}

// CachePath returns the absolute path of the configured cache database,
// or "" when caching is disabled.
func (o Options) CachePath() string {
	if o.Cache.Path == "" {
		return ""
	}
	if filepath.IsAbs(o.Cache.Path) {
		return o.Cache.Path
	}
	return filepath.Join(o.Dir, o.Cache.Path)
}
