package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/blockspacer/spmdfy/internal/diag"
	"github.com/blockspacer/spmdfy/internal/project"
)

// Increment when CachedResult changes shape or emitted text changes for
// identical input.
const cacheSchemaVersion uint16 = 1

// Cache stores translated output on disk keyed by input digest.
// Safe for concurrent use.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// CachedResult is the stored form of a clean translation.
type CachedResult struct {
	Schema  uint16
	Path    string
	Output  string
	Kernels []string
	// Diagnostics holds the warnings of the translation. Spans stay valid
	// because the main file is always registered first.
	Diagnostics []diag.Diagnostic
	Created     time.Time
}

// OpenCache opens the cache under $XDG_CACHE_HOME/app (or ~/.cache/app).
func OpenCache(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return OpenCacheDir(filepath.Join(base, app))
}

// OpenCacheDir opens a cache rooted at dir, creating it if needed.
func OpenCacheDir(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

// CacheKey digests everything that determines the output of one file:
// the AST, the source text, the mapping tables and the emission options.
func CacheKey(ast, src []byte, fingerprint string, opts ...string) project.Digest {
	settings := [][]byte{
		[]byte(strconv.Itoa(int(cacheSchemaVersion))),
		[]byte(fingerprint),
	}
	for _, o := range opts {
		settings = append(settings, []byte(o))
	}
	return project.Combine(project.DigestOf(ast), project.DigestOf(src), project.DigestOf(settings...))
}

func (c *Cache) pathFor(key project.Digest) string {
	hexKey := key.String()
	return filepath.Join(c.dir, "units", hexKey[:2], hexKey+".mp")
}

// Put writes res under key. The file is replaced atomically so concurrent
// readers never observe a partial entry.
func (c *Cache) Put(key project.Digest, res *CachedResult) (err error) {
	if c == nil || res == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err = os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	res.Schema = cacheSchemaVersion
	if err = msgpack.NewEncoder(f).Encode(res); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads the entry for key. Entries written by another schema version
// are reported as misses.
func (c *Cache) Get(key project.Digest) (*CachedResult, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	// #nosec G304 -- path is derived from a hex digest under the cache dir
	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var out CachedResult
	if err := msgpack.NewDecoder(f).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("cache entry %s: %w", filepath.Base(f.Name()), err)
	}
	if out.Schema != cacheSchemaVersion {
		return nil, false, nil
	}
	return &out, true, nil
}

// DropAll removes every entry.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := strings.TrimRight(c.dir, string(filepath.Separator)) + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}
