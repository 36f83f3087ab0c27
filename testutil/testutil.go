package testutil

import (
	"math/rand"
	"sync"

	"github.com/hupe1980/spatialidx/geom"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic test data
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Box returns a box with its lower corner in [0, extent)² and sides up to
// extent/100.
func (r *RNG) Box(extent float64) geom.Box {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.box(extent)
}

func (r *RNG) box(extent float64) geom.Box {
	x, y := r.rand.Float64()*extent, r.rand.Float64()*extent
	w, h := r.rand.Float64()*extent/100, r.rand.Float64()*extent/100
	return geom.Box{MinX: x, MinY: y, MaxX: x + w, MaxY: y + h}
}

// Boxes returns n random boxes.
func (r *RNG) Boxes(n int, extent float64) []geom.Box {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]geom.Box, n)
	for i := range out {
		out[i] = r.box(extent)
	}
	return out
}

// Points returns n random point boxes in [0, extent)².
func (r *RNG) Points(n int, extent float64) []geom.Box {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]geom.Box, n)
	for i := range out {
		out[i] = geom.PointBox(r.rand.Float64()*extent, r.rand.Float64()*extent)
	}
	return out
}

// Entries returns n random entries whose locators tile a source file of
// 32-byte records back to back.
func (r *RNG) Entries(n int, extent float64) []geom.Entry {
	return EntriesFor(r.Boxes(n, extent))
}

// EntriesFor pairs boxes with contiguous 32-byte locators.
func EntriesFor(boxes []geom.Box) []geom.Entry {
	out := make([]geom.Entry, len(boxes))
	for i, b := range boxes {
		out[i] = geom.Entry{
			Box:     b,
			Locator: geom.Locator{Offset: uint64(i) * 32, Length: 32}, //nolint:gosec // i >= 0
		}
	}
	return out
}

// Grid returns n×n unit boxes laid out on an integer grid.
func Grid(n int) []geom.Box {
	out := make([]geom.Box, 0, n*n)
	for y := range n {
		for x := range n {
			fx, fy := float64(x), float64(y)
			out = append(out, geom.Box{MinX: fx, MinY: fy, MaxX: fx + 1, MaxY: fy + 1})
		}
	}
	return out
}
