package rtree

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/hupe1980/spatialidx/geom"
	"github.com/hupe1980/spatialidx/store"
)

// BulkLoad replaces the tree contents with entries, packing nodes bottom-up
// in sort-tile-recursive order.
//
// Each level is cut into ceil(n/MaxEntries) groups whose sizes differ by at
// most one, so every non-root node holds at least MinEntries slots. On
// allocation failure the partial nodes are released and the tree is left
// empty.
func (t *Tree) BulkLoad(entries []geom.Entry) error {
	if t.readOnly() {
		return store.ErrReadOnly
	}

	for i := range entries {
		if !entries[i].Box.Valid() {
			return fmt.Errorf("%w: entry %d: %s", ErrInvalidEntry, i, entries[i])
		}
	}

	if err := t.Clear(); err != nil {
		return err
	}

	if len(entries) == 0 {
		return nil
	}

	items := make([]slot, len(entries))
	for i := range entries {
		items[i] = entrySlot(entries[i])
	}

	maxEntries := t.Config().MaxEntries

	var (
		allocated []uint64
		level     uint32
	)

	for {
		sizes := packLevel(items, maxEntries)

		offs, err := t.reserve(len(sizes))
		if err != nil {
			t.release(allocated)
			return err
		}

		allocated = append(allocated, offs...)

		next := make([]slot, 0, len(sizes))
		pos := 0

		for g, size := range sizes {
			n := t.newNode(offs[g], level)
			for _, s := range items[pos : pos+size] {
				n.push(s)
			}
			pos += size

			next = append(next, slot{Box: n.cover(), Ref: n.off})
		}

		if len(next) == 1 {
			break
		}

		items = next
		level++
	}

	m := t.meta()
	m.Root = allocated[len(allocated)-1]
	m.Height = level + 1
	m.Nodes = uint64(len(allocated))
	m.Size = uint64(len(entries))
	m.Bounds = geom.Bounds(entries)

	return nil
}

// packLevel orders items for one level and returns the group sizes.
// Items are sorted by center x, cut into vertical slices of whole groups,
// and each slice is sorted by center y.
func packLevel(items []slot, maxEntries int) []int {
	sizes := evenGroups(len(items), maxEntries)
	if len(sizes) == 1 {
		return sizes
	}

	slices.SortStableFunc(items, func(a, b slot) int {
		ax, _ := a.Box.Center()
		bx, _ := b.Box.Center()
		return cmp.Compare(ax, bx)
	})

	tiles := int(math.Ceil(math.Sqrt(float64(len(sizes)))))
	perTile := (len(sizes) + tiles - 1) / tiles

	pos := 0
	for g := 0; g < len(sizes); g += perTile {
		span := 0
		for _, size := range sizes[g:min(g+perTile, len(sizes))] {
			span += size
		}

		slices.SortStableFunc(items[pos:pos+span], func(a, b slot) int {
			_, ay := a.Box.Center()
			_, by := b.Box.Center()
			return cmp.Compare(ay, by)
		})

		pos += span
	}

	return sizes
}

// evenGroups splits n items into ceil(n/maxEntries) groups whose sizes
// differ by at most one.
func evenGroups(n, maxEntries int) []int {
	groups := (n + maxEntries - 1) / maxEntries
	base, extra := n/groups, n%groups

	sizes := make([]int, groups)
	for i := range sizes {
		sizes[i] = base
		if i < extra {
			sizes[i]++
		}
	}

	return sizes
}
