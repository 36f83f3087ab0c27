package geom

import (
	"fmt"
	"math"
)

// Box is an axis-aligned bounding box in a shared 2D coordinate space.
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// NewBox returns the box spanning the two corners, normalizing the order.
func NewBox(x1, y1, x2, y2 float64) Box {
	return Box{
		MinX: math.Min(x1, x2),
		MinY: math.Min(y1, y2),
		MaxX: math.Max(x1, x2),
		MaxY: math.Max(y1, y2),
	}
}

// PointBox returns the degenerate box covering a single point.
func PointBox(x, y float64) Box {
	return Box{MinX: x, MinY: y, MaxX: x, MaxY: y}
}

// EmptyBox returns the inverted sentinel that is the identity for Union.
func EmptyBox() Box {
	return Box{
		MinX: math.Inf(1),
		MinY: math.Inf(1),
		MaxX: math.Inf(-1),
		MaxY: math.Inf(-1),
	}
}

// IsEmpty reports whether b covers no point.
func (b Box) IsEmpty() bool {
	return b.MinX > b.MaxX || b.MinY > b.MaxY
}

// Valid reports whether b is a real box with finite, ordered coordinates.
func (b Box) Valid() bool {
	for _, v := range [4]float64{b.MinX, b.MinY, b.MaxX, b.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return !b.IsEmpty()
}

// Union returns the smallest box enclosing both boxes.
func (b Box) Union(o Box) Box {
	return Box{
		MinX: math.Min(b.MinX, o.MinX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

// Extend grows b in place to cover o.
func (b *Box) Extend(o Box) {
	*b = b.Union(o)
}

// Area returns the area of b, or 0 when empty.
func (b Box) Area() float64 {
	if b.IsEmpty() {
		return 0
	}
	return (b.MaxX - b.MinX) * (b.MaxY - b.MinY)
}

// Enlargement returns the area increase needed for b to also cover o.
func (b Box) Enlargement(o Box) float64 {
	return b.Union(o).Area() - b.Area()
}

// Width returns the extent of b on the given axis (0 = x, 1 = y).
func (b Box) Width(axis int) float64 {
	if axis == 0 {
		return b.MaxX - b.MinX
	}
	return b.MaxY - b.MinY
}

// Min returns the lower edge of b on the given axis (0 = x, 1 = y).
func (b Box) Min(axis int) float64 {
	if axis == 0 {
		return b.MinX
	}
	return b.MinY
}

// Max returns the upper edge of b on the given axis (0 = x, 1 = y).
func (b Box) Max(axis int) float64 {
	if axis == 0 {
		return b.MaxX
	}
	return b.MaxY
}

// Center returns the midpoint of b.
func (b Box) Center() (x, y float64) {
	return (b.MinX + b.MaxX) / 2, (b.MinY + b.MaxY) / 2
}

// Intersects reports whether b and o share at least one point.
func (b Box) Intersects(o Box) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX &&
		b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// Contains reports whether o lies entirely inside b.
func (b Box) Contains(o Box) bool {
	return b.MinX <= o.MinX && o.MaxX <= b.MaxX &&
		b.MinY <= o.MinY && o.MaxY <= b.MaxY
}

// Equal reports exact coordinate equality. Two empty boxes are equal.
func (b Box) Equal(o Box) bool {
	if b.IsEmpty() && o.IsEmpty() {
		return true
	}
	return b == o
}

func (b Box) String() string {
	if b.IsEmpty() {
		return "box(empty)"
	}
	return fmt.Sprintf("box(%g,%g,%g,%g)", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// UnionAll returns the union of all boxes, or EmptyBox for none.
func UnionAll(boxes []Box) Box {
	u := EmptyBox()
	for _, b := range boxes {
		u = u.Union(b)
	}
	return u
}
