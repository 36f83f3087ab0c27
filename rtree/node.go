package rtree

import (
	"unsafe"

	"github.com/hupe1980/spatialidx/geom"
)

// nodeHeader starts every node. Level 0 is a leaf.
type nodeHeader struct {
	Level uint32
	Count uint32
}

// slot is one child reference or one entry. Leaf slots carry a locator in
// Ref/Len; internal slots carry the child node offset in Ref.
type slot struct {
	Box geom.Box
	Ref uint64
	Len uint64
}

const (
	nodeHeaderSize = uint64(unsafe.Sizeof(nodeHeader{}))
	slotSize       = uint64(unsafe.Sizeof(slot{}))
)

// node is a resolved view of one node record. It is only valid while the
// owning region stays mapped.
type node struct {
	off   uint64
	hdr   *nodeHeader
	slots []slot // len == MaxEntries+1
}

func (n node) leaf() bool { return n.hdr.Level == 0 }

func (n node) count() int { return int(n.hdr.Count) }

// live returns the occupied slots.
func (n node) live() []slot { return n.slots[:n.hdr.Count] }

func (n node) push(s slot) {
	n.slots[n.hdr.Count] = s
	n.hdr.Count++
}

// cover returns the union of the occupied slot boxes.
func (n node) cover() geom.Box {
	b := geom.EmptyBox()
	for i := range n.live() {
		b = b.Union(n.slots[i].Box)
	}
	return b
}

func (n node) find(child uint64) int {
	for i := range n.live() {
		if n.slots[i].Ref == child {
			return i
		}
	}
	return -1
}

func entrySlot(e geom.Entry) slot {
	return slot{Box: e.Box, Ref: e.Locator.Offset, Len: e.Locator.Length}
}

func (s slot) entry() geom.Entry {
	return geom.Entry{Box: s.Box, Locator: geom.Locator{Offset: s.Ref, Length: s.Len}}
}
