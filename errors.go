package spatialidx

import (
	"errors"
	"fmt"

	"github.com/hupe1980/spatialidx/extract"
	"github.com/hupe1980/spatialidx/internal/arena"
	"github.com/hupe1980/spatialidx/internal/resource"
	"github.com/hupe1980/spatialidx/rtree"
	"github.com/hupe1980/spatialidx/store"
)

var (
	// ErrUsage is returned for malformed invocations: empty paths, unknown
	// modes, invalid tree configuration.
	ErrUsage = errors.New("usage error")

	// ErrNameCollision is returned, wrapped in an AllocationError, when a
	// create-only build finds its key already taken.
	ErrNameCollision = store.ErrNameCollision

	// ErrNotFound is returned when opening a region that holds no index.
	ErrNotFound = errors.New("index not found")
)

// MappingError indicates the source file could not be mapped for reading.
//
// The original underlying error can be accessed via errors.Unwrap.
type MappingError struct {
	Path  string
	cause error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("map %s: %v", e.Path, e.cause)
}

func (e *MappingError) Unwrap() error { return e.cause }

// ParseError indicates the extractor rejected the source. No entries from a
// failed extraction are kept.
//
// The original underlying error can be accessed via errors.Unwrap.
type ParseError struct {
	Path   string
	Offset int64 // byte offset of the failure, -1 if unknown
	cause  error
}

func (e *ParseError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("parse %s at offset %d: %v", e.Path, e.Offset, e.cause)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.cause)
}

func (e *ParseError) Unwrap() error { return e.cause }

// AllocationError indicates the backing region could not hold the index:
// the region was too small, its key was already taken under create-only, or
// the memory budget refused the reservation.
//
// The original underlying error can be accessed via errors.Unwrap.
type AllocationError struct {
	Key      string
	Capacity uint64
	cause    error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocate %s (%d bytes): %v", e.Key, e.Capacity, e.cause)
}

func (e *AllocationError) Unwrap() error { return e.cause }

// translateError maps lower-layer errors into the package taxonomy. key and
// capacity describe the region involved, path the source file.
func translateError(err error, path, key string, capacity uint64) error {
	if err == nil {
		return nil
	}

	var se *extract.SyntaxError
	if errors.As(err, &se) {
		return &ParseError{Path: path, Offset: se.Offset, cause: err}
	}

	if errors.Is(err, rtree.ErrInvalidEntry) {
		return &ParseError{Path: path, Offset: -1, cause: err}
	}

	if errors.Is(err, rtree.ErrInvalidConfig) {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}

	if errors.Is(err, arena.ErrArenaFull) ||
		errors.Is(err, store.ErrNameCollision) ||
		errors.Is(err, store.ErrInvalidCapacity) ||
		errors.Is(err, resource.ErrMemoryLimitExceeded) {
		return &AllocationError{Key: key, Capacity: capacity, cause: err}
	}

	if errors.Is(err, rtree.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	return err
}
