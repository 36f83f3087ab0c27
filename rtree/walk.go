package rtree

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/spatialidx/geom"
)

// Stats summarizes the tree shape.
type Stats struct {
	Height     int
	Nodes      uint64
	Leaves     uint64
	RootFanout int
	Entries    uint64
}

// Walk calls fn for every entry in depth-first order until fn returns false.
// Nodes that do not resolve inside the region are skipped; Validate reports
// them.
func (t *Tree) Walk(fn func(geom.Entry) bool) {
	if m := t.meta(); m.Root != 0 && m.Height > 0 {
		t.walk(m.Root, m.Height-1, fn)
	}
}

func (t *Tree) walk(off uint64, level uint32, fn func(geom.Entry) bool) bool {
	n, ok := t.child(off, level)
	if !ok {
		return true
	}

	for _, s := range n.live() {
		if n.leaf() {
			if !fn(s.entry()) {
				return false
			}
			continue
		}

		if !t.walk(s.Ref, level-1, fn) {
			return false
		}
	}

	return true
}

// Entries returns every entry in traversal order.
func (t *Tree) Entries() []geom.Entry {
	out := make([]geom.Entry, 0, min(t.Size(), 1<<16))

	t.Walk(func(e geom.Entry) bool {
		out = append(out, e)
		return true
	})

	return out
}

// Stats walks the node structure and reports its shape.
func (t *Tree) Stats() Stats {
	m := t.meta()
	st := Stats{Height: int(m.Height), Entries: m.Size}

	if m.Root == 0 || m.Height == 0 {
		return st
	}

	root, ok := t.child(m.Root, m.Height-1)
	if !ok {
		return st
	}

	st.RootFanout = root.count()
	t.visit(m.Root, m.Height-1, func(n node) {
		st.Nodes++
		if n.leaf() {
			st.Leaves++
		}
	})

	return st
}

func (t *Tree) visit(off uint64, level uint32, fn func(node)) {
	n, ok := t.child(off, level)
	if !ok {
		return
	}
	fn(n)

	if !n.leaf() {
		for _, s := range n.live() {
			t.visit(s.Ref, level-1, fn)
		}
	}
}

// Validate checks the structural invariants: fan-out bounds, leaf depth,
// exact coverage of every internal slot, the cached bounds, entry and node
// counts, and that no node is reachable twice.
func (t *Tree) Validate() error {
	m := t.meta()

	if m.Root == 0 {
		if m.Height != 0 || m.Size != 0 || m.Nodes != 0 || !m.Bounds.IsEmpty() {
			return fmt.Errorf("%w: empty tree with height %d, size %d, nodes %d, bounds %s",
				ErrInvalidTree, m.Height, m.Size, m.Nodes, m.Bounds)
		}
		return nil
	}

	v := validator{
		t:       t,
		cfg:     m.config(),
		visited: roaring64.New(),
	}

	if err := t.checkRoot(); err != nil {
		return err
	}

	cover, err := v.check(m.Root, m.Height-1, true)
	if err != nil {
		return err
	}

	if !cover.Equal(m.Bounds) {
		return fmt.Errorf("%w: cached bounds %s, entries cover %s", ErrInvalidTree, m.Bounds, cover)
	}

	if v.entries != m.Size {
		return fmt.Errorf("%w: size %d, found %d entries", ErrInvalidTree, m.Size, v.entries)
	}

	if nodes := v.visited.GetCardinality(); nodes != m.Nodes {
		return fmt.Errorf("%w: node count %d, found %d", ErrInvalidTree, m.Nodes, nodes)
	}

	return nil
}

type validator struct {
	t       *Tree
	cfg     Config
	visited *roaring64.Bitmap
	entries uint64
}

func (v *validator) check(off uint64, level uint32, root bool) (geom.Box, error) {
	if v.visited.Contains(off) {
		return geom.Box{}, fmt.Errorf("%w: node %d reachable twice", ErrInvalidTree, off)
	}
	v.visited.Add(off)

	n, err := v.t.nodeAt(off)
	if err != nil {
		return geom.Box{}, err
	}

	if n.hdr.Level != level {
		return geom.Box{}, fmt.Errorf("%w: node %d at level %d, expected %d", ErrInvalidTree, off, n.hdr.Level, level)
	}

	lo := v.cfg.MinEntries
	switch {
	case root && n.leaf():
		lo = 1
	case root:
		lo = 2
	}

	if n.count() < lo || n.count() > v.cfg.MaxEntries {
		return geom.Box{}, fmt.Errorf("%w: node %d holds %d slots, want [%d, %d]",
			ErrInvalidTree, off, n.count(), lo, v.cfg.MaxEntries)
	}

	if n.leaf() {
		v.entries += uint64(n.count())
		return n.cover(), nil
	}

	for i, s := range n.live() {
		cover, err := v.check(s.Ref, level-1, false)
		if err != nil {
			return geom.Box{}, err
		}

		if !cover.Equal(s.Box) {
			return geom.Box{}, fmt.Errorf("%w: node %d slot %d box %s, child covers %s",
				ErrInvalidTree, off, i, s.Box, cover)
		}
	}

	return n.cover(), nil
}
