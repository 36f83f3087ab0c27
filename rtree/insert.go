package rtree

import (
	"fmt"

	"github.com/hupe1980/spatialidx/geom"
	"github.com/hupe1980/spatialidx/store"
)

// Insert adds one entry.
//
// Every node a split chain could need is allocated before the tree is
// touched, so an allocation failure returns the error with the tree
// unchanged.
func (t *Tree) Insert(e geom.Entry) error {
	if t.readOnly() {
		return store.ErrReadOnly
	}

	if !e.Box.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidEntry, e)
	}

	m := t.meta()

	if m.Root == 0 {
		offs, err := t.reserve(1)
		if err != nil {
			return err
		}

		leaf := t.newNode(offs[0], 0)
		leaf.push(entrySlot(e))

		m.Root = leaf.off
		m.Height = 1
		m.Nodes = 1
		m.Size = 1
		m.Bounds = e.Box

		return nil
	}

	path := t.choosePath(e.Box)

	spare, err := t.reserve(t.splitsNeeded(path))
	if err != nil {
		return err
	}

	leaf := path[len(path)-1]
	leaf.push(entrySlot(e))

	t.adjust(path, spare)

	m.Size++
	m.Bounds = m.Bounds.Union(e.Box)

	return nil
}

// choosePath descends from the root to the leaf that should receive box.
func (t *Tree) choosePath(box geom.Box) []node {
	m := t.meta()
	path := make([]node, 0, m.Height)

	n := t.node(m.Root)
	path = append(path, n)

	for !n.leaf() {
		n = t.node(n.slots[chooseSubtree(n.live(), box)].Ref)
		path = append(path, n)
	}

	return path
}

// chooseSubtree picks the slot needing the least area enlargement to cover
// box, breaking ties by the smaller resulting area.
func chooseSubtree(slots []slot, box geom.Box) int {
	best := 0
	bestEnl, bestArea := 0.0, 0.0

	for i := range slots {
		grown := slots[i].Box.Union(box)
		area := grown.Area()
		enl := area - slots[i].Box.Area()

		if i == 0 || enl < bestEnl || (enl == bestEnl && area < bestArea) {
			best, bestEnl, bestArea = i, enl, area
		}
	}

	return best
}

// splitsNeeded counts the nodes an insertion along path allocates: one per
// full node from the leaf upward, plus a new root when the root splits too.
func (t *Tree) splitsNeeded(path []node) int {
	limit := int(t.meta().MaxEntries)
	needed := 0

	for i := len(path) - 1; i >= 0; i-- {
		if path[i].count() < limit {
			return needed
		}
		needed++
	}

	return needed + 1
}

// adjust walks path bottom-up, splitting overflowing nodes with the spare
// nodes and re-covering every ancestor slot exactly.
func (t *Tree) adjust(path []node, spare []uint64) {
	m := t.meta()
	limit := int(m.MaxEntries)

	var sibling *node

	for i := len(path) - 1; i >= 0; i-- {
		n := path[i]

		if sibling != nil {
			n.push(slot{Box: sibling.cover(), Ref: sibling.off})
			sibling = nil
		}

		if n.count() > limit {
			s := t.newNode(spare[0], n.hdr.Level)
			spare = spare[1:]
			t.splitNode(n, s)
			m.Nodes++
			sibling = &s
		}

		if i > 0 {
			parent := path[i-1]
			idx := parent.find(n.off)
			parent.slots[idx].Box = n.cover()
		}
	}

	if sibling != nil {
		old := path[0]
		root := t.newNode(spare[0], old.hdr.Level+1)
		root.push(slot{Box: old.cover(), Ref: old.off})
		root.push(slot{Box: sibling.cover(), Ref: sibling.off})

		m.Root = root.off
		m.Height++
		m.Nodes++
	}
}

// splitNode moves the slots of an overflowing node n into n and s according
// to the split policy.
func (t *Tree) splitNode(n, s node) {
	minEntries := int(t.meta().MinEntries)

	slots := make([]slot, n.count())
	copy(slots, n.live())

	boxes := make([]geom.Box, len(slots))
	for i := range slots {
		boxes[i] = slots[i].Box
	}

	left, right := t.split.Split(boxes, minEntries)
	if !validPartition(left, right, len(slots), minEntries) {
		left, right = LinearSplit{}.Split(boxes, minEntries)
	}

	n.hdr.Count = 0
	for _, i := range left {
		n.push(slots[i])
	}

	for _, i := range right {
		s.push(slots[i])
	}
}

// validPartition reports whether left and right split [0, n) into two groups
// of at least minEntries each.
func validPartition(left, right []int, n, minEntries int) bool {
	if len(left)+len(right) != n || len(left) < minEntries || len(right) < minEntries {
		return false
	}

	seen := make([]bool, n)
	for _, group := range [][]int{left, right} {
		for _, i := range group {
			if i < 0 || i >= n || seen[i] {
				return false
			}
			seen[i] = true
		}
	}

	return true
}
