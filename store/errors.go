package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNameCollision is returned by CreateOnly when the name already exists.
	ErrNameCollision = errors.New("store: name already exists")
	// ErrReadOnly is returned for mutations through a read-only store.
	ErrReadOnly = errors.New("store: read-only")
	// ErrClosed is returned when using a closed store.
	ErrClosed = errors.New("store: closed")
	// ErrInvalidName is returned for empty names or shared names containing separators.
	ErrInvalidName = errors.New("store: invalid name")
	// ErrInvalidCapacity is returned when the capacity cannot hold the region header.
	ErrInvalidCapacity = errors.New("store: invalid capacity")
	// ErrTypeMismatch is returned when a named object has a different size than requested.
	ErrTypeMismatch = errors.New("store: named object size mismatch")
)

// CollisionError reports the name and location that already existed.
type CollisionError struct {
	Kind Kind
	Name string
	Path string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("store: %s %q already exists at %s", e.Kind, e.Name, e.Path)
}

// Unwrap returns ErrNameCollision.
func (e *CollisionError) Unwrap() error {
	return ErrNameCollision
}
