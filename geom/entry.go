package geom

import "fmt"

// Locator identifies one record's exact byte span in the source file.
type Locator struct {
	Offset uint64
	Length uint64
}

// End returns the offset one past the last byte of the span.
func (l Locator) End() uint64 {
	return l.Offset + l.Length
}

// Within reports whether the span is non-empty and fits a source of size bytes.
func (l Locator) Within(size uint64) bool {
	return l.Length > 0 && l.Offset <= size && l.Length <= size-l.Offset
}

func (l Locator) String() string {
	return fmt.Sprintf("@%d+%d", l.Offset, l.Length)
}

// Entry pairs a feature's bounding box with its locator. Entries are created
// once during extraction and never mutated.
type Entry struct {
	Box     Box
	Locator Locator
}

// Equal is an exact match on box and locator.
func (e Entry) Equal(o Entry) bool {
	return e.Box == o.Box && e.Locator == o.Locator
}

func (e Entry) String() string {
	return e.Box.String() + e.Locator.String()
}

// Bounds returns the union of all entry boxes, or EmptyBox for none.
func Bounds(entries []Entry) Box {
	u := EmptyBox()
	for i := range entries {
		u = u.Union(entries[i].Box)
	}
	return u
}
