// Package project locates and decodes the spmdfy.toml project manifest.
package project

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/blockspacer/spmdfy/internal/typemap"
)

var (
	// ErrUnknownKey is returned for manifest keys nothing reads.
	ErrUnknownKey = errors.New("unknown key")
	// ErrInvalidValue is returned for values outside their allowed range.
	ErrInvalidValue = errors.New("invalid value")
)

// Manifest is a decoded spmdfy.toml.
type Manifest struct {
	Path   string
	Root   string
	Config Config
}

// Config mirrors the manifest layout.
type Config struct {
	Translate TranslateConfig   `toml:"translate"`
	Types     map[string]string `toml:"types"`
	Atomics   map[string]string `toml:"atomics"`
}

// TranslateConfig holds the [translate] section.
type TranslateConfig struct {
	Clang      string   `toml:"clang"`
	ClangArgs  []string `toml:"clang_args"`
	Include    []string `toml:"include"`
	Jobs       int      `toml:"jobs"`
	Barriers   []string `toml:"barriers"`
	NullToken  string   `toml:"null_token"`
	SharedSize string   `toml:"shared_size"`
	// Cache is a pointer so an absent key can be told apart from false.
	Cache *bool  `toml:"cache"`
	Out   string `toml:"out"`
}

// CacheEnabled reports the cache setting, true when unset.
func (c TranslateConfig) CacheEnabled() bool {
	return c.Cache == nil || *c.Cache
}

// Overrides returns the [types] and [atomics] entries as table overrides.
func (c Config) Overrides() typemap.Overrides {
	return typemap.Overrides{Types: c.Types, Atomics: c.Atomics}
}

// Tables returns the default mapping tables with the manifest overrides
// applied.
func (c Config) Tables() *typemap.Tables {
	return typemap.Default().With(c.Overrides())
}

// LoadManifest finds spmdfy.toml from startDir upwards and decodes it.
// ok is false when there is no manifest.
func LoadManifest(startDir string) (*Manifest, bool, error) {
	path, ok, err := FindManifest(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, true, err
	}
	return &Manifest{Path: path, Root: filepath.Dir(path), Config: cfg}, true, nil
}

// LoadConfig decodes and validates the manifest at path. Relative include
// directories are resolved against the manifest's directory.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		slices.Sort(keys)
		return Config{}, fmt.Errorf("%s: %w: %s", path, ErrUnknownKey, strings.Join(keys, ", "))
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	root := filepath.Dir(path)
	for i, dir := range cfg.Translate.Include {
		if !filepath.IsAbs(dir) {
			cfg.Translate.Include[i] = filepath.Join(root, filepath.FromSlash(dir))
		}
	}
	if out := cfg.Translate.Out; out != "" && !filepath.IsAbs(out) {
		cfg.Translate.Out = filepath.Join(root, filepath.FromSlash(out))
	}
	return cfg, nil
}

func (c Config) validate() error {
	t := c.Translate
	if t.Jobs < 0 {
		return fmt.Errorf("%w: [translate].jobs must not be negative, got %d", ErrInvalidValue, t.Jobs)
	}
	for _, b := range t.Barriers {
		if !isIdentifier(b) {
			return fmt.Errorf("%w: [translate].barriers entry %q is not an identifier", ErrInvalidValue, b)
		}
	}
	for from := range c.Atomics {
		if !isIdentifier(from) {
			return fmt.Errorf("%w: [atomics] key %q is not an identifier", ErrInvalidValue, from)
		}
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
