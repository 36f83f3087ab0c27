package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"github.com/hupe1980/spatialidx/internal/arena"
	"github.com/hupe1980/spatialidx/internal/conv"
	"github.com/hupe1980/spatialidx/internal/fs"
	"github.com/hupe1980/spatialidx/internal/mmap"
)

// Stats describes a store and its region.
type Stats struct {
	arena.Stats
	Kind     Kind
	Name     string
	Path     string
	ReadOnly bool
}

// Store is one mapped region plus its allocator.
type Store struct {
	kind     Kind
	name     string
	path     string
	readOnly bool
	created  bool

	mu      sync.Mutex
	mapping *mmap.Mapping
	region  *arena.Region
	logger  *slog.Logger
}

// OpenOrCreate opens the named region, or creates it with the given capacity
// when it does not exist. An existing region keeps its recorded capacity.
func OpenOrCreate(kind Kind, name string, capacity uint64, optFns ...Option) (*Store, error) {
	opts := applyOptions(optFns)

	if kind == KindMemory {
		return createMemory(name, capacity, opts)
	}

	path, err := Path(kind, name)
	if err != nil {
		return nil, err
	}

	f, err := opts.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("store: stat %s: %w", path, err)
	}

	if fi.Size() > 0 {
		s, err := attachFile(f, kind, name, path, fi.Size(), true, opts)
		if err != nil {
			return nil, err
		}

		opts.logger.Info("opened region", "kind", kind, "path", path, "capacity", s.region.Capacity())

		return s, nil
	}

	return formatFile(f, kind, name, path, capacity, opts)
}

// CreateOnly creates the named region and fails with ErrNameCollision when it
// already exists.
func CreateOnly(kind Kind, name string, capacity uint64, optFns ...Option) (*Store, error) {
	opts := applyOptions(optFns)

	if kind == KindMemory {
		return createMemory(name, capacity, opts)
	}

	path, err := Path(kind, name)
	if err != nil {
		return nil, err
	}

	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}

	f, err := opts.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, &CollisionError{Kind: kind, Name: name, Path: path}
		}
		return nil, fmt.Errorf("store: create %s: %w", path, err)
	}
	defer f.Close()

	s, err := formatFile(f, kind, name, path, capacity, opts)
	if err != nil {
		_ = opts.fs.Remove(path)
		return nil, err
	}

	return s, nil
}

// OpenReadOnly maps an existing region for reading. Any mutation through the
// returned store fails with ErrReadOnly.
func OpenReadOnly(kind Kind, name string, optFns ...Option) (*Store, error) {
	if kind == KindMemory {
		return nil, fmt.Errorf("%w: memory regions cannot be reopened", ErrInvalidName)
	}

	opts := applyOptions(optFns)

	path, err := Path(kind, name)
	if err != nil {
		return nil, err
	}

	return openReadOnly(kind, name, path, opts)
}

func openReadOnly(kind Kind, name, path string, opts options) (*Store, error) {
	f, err := opts.fs.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("store: stat %s: %w", path, err)
	}

	return attachFile(f, kind, name, path, fi.Size(), false, opts)
}

func createMemory(name string, capacity uint64, opts options) (*Store, error) {
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}

	size, err := conv.Uint64ToInt(capacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCapacity, err)
	}

	m, err := mmap.MapAnon(size)
	if err != nil {
		return nil, fmt.Errorf("store: map anonymous region: %w", err)
	}

	region, err := arena.Format(m.Bytes())
	if err != nil {
		_ = m.Close()
		return nil, err
	}

	opts.logger.Debug("created region", "kind", KindMemory, "name", name, "capacity", capacity)

	return newStore(KindMemory, name, "", m, region, false, true, opts), nil
}

func formatFile(f fs.File, kind Kind, name, path string, capacity uint64, opts options) (*Store, error) {
	if err := checkCapacity(capacity); err != nil {
		return nil, err
	}

	size, err := conv.Uint64ToInt64(capacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCapacity, err)
	}

	if err := f.Truncate(size); err != nil {
		return nil, fmt.Errorf("store: size %s to %d bytes: %w", path, capacity, err)
	}

	m, err := mapFile(f, size, true, opts)
	if err != nil {
		return nil, fmt.Errorf("store: map %s: %w", path, err)
	}

	region, err := arena.Format(m.Bytes())
	if err != nil {
		_ = m.Close()
		return nil, err
	}

	opts.logger.Info("created region", "kind", kind, "path", path, "capacity", capacity)

	return newStore(kind, name, path, m, region, false, true, opts), nil
}

func attachFile(f fs.File, kind Kind, name, path string, size int64, writable bool, opts options) (*Store, error) {
	m, err := mapFile(f, size, writable, opts)
	if err != nil {
		return nil, fmt.Errorf("store: map %s: %w", path, err)
	}

	region, err := arena.Attach(m.Bytes())
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("store: attach %s: %w", path, err)
	}

	return newStore(kind, name, path, m, region, !writable, false, opts), nil
}

func mapFile(f fs.File, size int64, writable bool, opts options) (*mmap.Mapping, error) {
	n, err := conv.Int64ToInt(size)
	if err != nil {
		return nil, err
	}

	m, err := mmap.Map(f, n, writable)
	if err != nil {
		return nil, err
	}

	if opts.advice != mmap.AccessDefault {
		if err := m.Advise(opts.advice); err != nil {
			opts.logger.Warn("madvise failed", "path", f.Name(), "error", err)
		}
	}

	return m, nil
}

func checkCapacity(capacity uint64) error {
	if capacity < arena.HeaderSize {
		return fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidCapacity, capacity, arena.HeaderSize)
	}
	return nil
}

func newStore(kind Kind, name, path string, m *mmap.Mapping, region *arena.Region, readOnly, created bool, opts options) *Store {
	return &Store{
		kind:     kind,
		name:     name,
		path:     path,
		readOnly: readOnly,
		created:  created,
		mapping:  m,
		region:   region,
		logger:   opts.logger,
	}
}

// Kind returns where the region lives.
func (s *Store) Kind() Kind { return s.kind }

// Name returns the name the store was opened with.
func (s *Store) Name() string { return s.name }

// Path returns the backing file path, or "" for memory stores.
func (s *Store) Path() string { return s.path }

// ReadOnly reports whether the store rejects mutations.
func (s *Store) ReadOnly() bool { return s.readOnly }

// Created reports whether this handle formatted a fresh region.
func (s *Store) Created() bool { return s.created }

// Capacity returns the fixed region size.
func (s *Store) Capacity() uint64 {
	if s.region == nil {
		return 0
	}
	return s.region.Capacity()
}

// Alloc reserves size zeroed bytes and returns their offset.
func (s *Store) Alloc(size uint64) (uint64, error) {
	if err := s.writable(); err != nil {
		return 0, err
	}
	return s.region.Alloc(size)
}

// Free returns a block obtained from Alloc.
func (s *Store) Free(off, size uint64) error {
	if err := s.writable(); err != nil {
		return err
	}
	return s.region.Free(off, size)
}

// Pointer resolves an offset to an address in the current mapping.
// The address is valid until Close.
func (s *Store) Pointer(off uint64) unsafe.Pointer {
	if s.region == nil {
		return nil
	}
	return s.region.Pointer(off)
}

// Bytes returns size bytes at off, valid until Close.
func (s *Store) Bytes(off, size uint64) []byte {
	if s.region == nil {
		return nil
	}
	return s.region.Bytes(off, size)
}

// Find returns the offset of the object bound to tag.
func (s *Store) Find(tag string) (uint64, bool) {
	if s.region == nil {
		return 0, false
	}

	off, _, ok := s.region.Lookup(tag)

	return off, ok
}

// Destroy frees the object bound to tag and removes the binding.
func (s *Store) Destroy(tag string) (bool, error) {
	if err := s.writable(); err != nil {
		return false, err
	}

	off, size, ok := s.region.Lookup(tag)
	if !ok {
		return false, nil
	}

	s.region.Unbind(tag)

	return true, s.region.Free(off, size)
}

// FindOrConstruct returns the object of type T bound to tag. When none is
// bound it allocates one, runs ctor on the zeroed value in place, and binds it.
// found reports whether the object already existed.
func FindOrConstruct[T any](s *Store, tag string, ctor func(*T)) (off uint64, found bool, err error) {
	if s.region == nil {
		return 0, false, ErrClosed
	}

	var zero T
	size := uint64(unsafe.Sizeof(zero))

	if off, got, ok := s.region.Lookup(tag); ok {
		if got != size {
			return 0, false, fmt.Errorf("%w: %q is %d bytes, want %d", ErrTypeMismatch, tag, got, size)
		}
		return off, true, nil
	}

	if s.readOnly {
		return 0, false, ErrReadOnly
	}

	off, err = s.region.Alloc(size)
	if err != nil {
		return 0, false, err
	}

	if ctor != nil {
		ctor((*T)(s.region.Pointer(off)))
	}

	if err := s.region.Bind(tag, off, size); err != nil {
		_ = s.region.Free(off, size)
		return 0, false, err
	}

	return off, false, nil
}

// At views the bytes at off as a T. It returns nil for the null offset.
func At[T any](s *Store, off uint64) *T {
	return (*T)(s.Pointer(off))
}

// Sync flushes a file or shared region to its backing object.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mapping == nil {
		return ErrClosed
	}

	return s.mapping.Sync()
}

// Stats reports region usage.
func (s *Store) Stats() Stats {
	st := Stats{Kind: s.kind, Name: s.name, Path: s.path, ReadOnly: s.readOnly}
	if s.region != nil {
		st.Stats = s.region.Stats()
	}

	return st
}

// Image returns the region bytes up to the high-water mark, valid until Close.
func (s *Store) Image() []byte {
	if s.region == nil {
		return nil
	}
	return s.region.Image()
}

// Close unmaps the region. Writable file and shared regions are synced
// first. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mapping == nil {
		return nil
	}

	var errs []error
	if s.mapping.Writable() {
		errs = append(errs, s.mapping.Sync())
	}

	errs = append(errs, s.mapping.Close())

	s.mapping = nil
	s.region = nil

	s.logger.Debug("closed region", "kind", s.kind, "name", s.name)

	return errors.Join(errs...)
}

func (s *Store) writable() error {
	if s.region == nil {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	return nil
}
