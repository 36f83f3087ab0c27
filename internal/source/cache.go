// Package source maps input files read-only and shares the mappings between
// callers that ask for the same path.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned when mapping through a closed cache.
var ErrClosed = errors.New("source: cache closed")

type entry struct {
	data mmap.MMap
	file *os.File
	refs int
}

func (e *entry) close() error {
	var errs []error
	if e.data != nil {
		errs = append(errs, e.data.Unmap())
	}
	if e.file != nil {
		errs = append(errs, e.file.Close())
	}
	return errors.Join(errs...)
}

// Cache hands out read-only mappings keyed by absolute path. Each Map must be
// paired with a Release; the mapping is removed when the last user releases
// it. Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
	closed  bool
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// Map returns the contents of path as a read-only byte slice. The slice is
// valid until the matching Release or Close. An empty file yields an empty,
// non-nil slice.
func (c *Cache) Map(path string) ([]byte, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("source: resolve %s: %w", path, err)
	}

	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}

		if e, ok := c.entries[key]; ok {
			e.refs++
			c.mu.Unlock()
			return e.bytes(), nil
		}
		c.mu.Unlock()

		if _, err, _ := c.group.Do(key, func() (any, error) {
			return nil, c.load(key)
		}); err != nil {
			return nil, err
		}
	}
}

func (e *entry) bytes() []byte {
	if e.data == nil {
		return []byte{}
	}
	return e.data
}

func (c *Cache) load(key string) error {
	c.mu.Lock()
	_, ok := c.entries[key]
	c.mu.Unlock()

	if ok {
		return nil
	}

	f, err := os.Open(key)
	if err != nil {
		return fmt.Errorf("source: open: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("source: stat %s: %w", key, err)
	}

	if fi.IsDir() {
		_ = f.Close()
		return fmt.Errorf("source: %s is a directory", key)
	}

	e := &entry{file: f}

	if fi.Size() > 0 {
		data, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("source: map %s: %w", key, err)
		}
		e.data = data
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.Join(ErrClosed, e.close())
	}

	c.entries[key] = e

	return nil
}

// Release drops one reference to the mapping of path.
func (c *Cache) Release(path string) error {
	key, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("source: resolve %s: %w", path, err)
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil
	}

	e.refs--
	if e.refs > 0 {
		c.mu.Unlock()
		return nil
	}

	delete(c.entries, key)
	c.mu.Unlock()

	return e.close()
}

// Len returns the number of live mappings.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close unmaps everything. Slices handed out earlier become invalid.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for key, e := range c.entries {
		errs = append(errs, e.close())
		delete(c.entries, key)
	}

	return errors.Join(errs...)
}
