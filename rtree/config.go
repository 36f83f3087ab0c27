package rtree

import (
	"errors"
	"fmt"
)

const (
	// DefaultMaxEntries is the default node fan-out.
	DefaultMaxEntries = 16
	// DefaultMinEntries is the default minimum fill of a non-root node.
	DefaultMinEntries = 4
	// maxFanout caps MaxEntries so node sizes stay reasonable.
	maxFanout = 1024
)

// ErrInvalidConfig is returned for fan-out settings the tree cannot honor.
var ErrInvalidConfig = errors.New("rtree: invalid config")

// Config holds the node fan-out parameters.
type Config struct {
	MaxEntries int
	MinEntries int
}

// DefaultConfig returns MaxEntries 16, MinEntries 4.
func DefaultConfig() Config {
	return Config{MaxEntries: DefaultMaxEntries, MinEntries: DefaultMinEntries}
}

// Validate checks that splits can always produce two valid groups.
func (c Config) Validate() error {
	if c.MaxEntries < 4 || c.MaxEntries > maxFanout {
		return fmt.Errorf("%w: max entries %d not in [4, %d]", ErrInvalidConfig, c.MaxEntries, maxFanout)
	}

	if c.MinEntries < 1 || c.MinEntries > c.MaxEntries/2 {
		return fmt.Errorf("%w: min entries %d not in [1, %d]", ErrInvalidConfig, c.MinEntries, c.MaxEntries/2)
	}

	return nil
}

// NodeSize returns the bytes one node occupies in the region.
func NodeSize(cfg Config) uint64 {
	return nodeHeaderSize + uint64(cfg.MaxEntries+1)*slotSize //nolint:gosec // validated config
}

// WorstCaseBytesPerEntry bounds region usage per entry for a tree built by
// repeated insertion, where every node may sit at minimum fill.
func WorstCaseBytesPerEntry(cfg Config) uint64 {
	size := NodeSize(cfg)
	if cfg.MinEntries <= 1 {
		return size
	}
	return (size + uint64(cfg.MinEntries-2)) / uint64(cfg.MinEntries-1) //nolint:gosec // validated config
}
