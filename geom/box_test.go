package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBox_Union(t *testing.T) {
	a := Box{0, 0, 1, 1}
	b := Box{5, 5, 6, 6}
	assert.Equal(t, Box{0, 0, 6, 6}, a.Union(b))

	// EmptyBox is the identity.
	assert.Equal(t, a, EmptyBox().Union(a))
	assert.Equal(t, a, a.Union(EmptyBox()))

	c := a
	c.Extend(b)
	assert.Equal(t, Box{0, 0, 6, 6}, c)
}

func TestBox_Empty(t *testing.T) {
	e := EmptyBox()
	assert.True(t, e.IsEmpty())
	assert.False(t, e.Valid())
	assert.Zero(t, e.Area())
	assert.Equal(t, "box(empty)", e.String())
	assert.True(t, e.Equal(Box{MinX: 1, MaxX: 0}))

	assert.True(t, UnionAll(nil).IsEmpty())
	assert.True(t, Bounds(nil).IsEmpty())
}

func TestBox_AreaEnlargement(t *testing.T) {
	a := Box{0, 0, 2, 3}
	assert.Equal(t, 6.0, a.Area())
	assert.Equal(t, 0.0, a.Enlargement(Box{1, 1, 2, 2}))
	assert.Equal(t, 6.0, a.Enlargement(Box{0, 0, 4, 3}))

	p := PointBox(3, 4)
	assert.Zero(t, p.Area())
	assert.True(t, p.Valid())
}

func TestBox_Predicates(t *testing.T) {
	a := NewBox(2, 2, 0, 0)
	assert.Equal(t, Box{0, 0, 2, 2}, a)

	assert.True(t, a.Intersects(Box{2, 2, 3, 3}))
	assert.False(t, a.Intersects(Box{2.1, 0, 3, 1}))
	assert.True(t, a.Contains(Box{0.5, 0.5, 1, 1}))
	assert.False(t, a.Contains(Box{0.5, 0.5, 3, 1}))

	x, y := a.Center()
	assert.Equal(t, 1.0, x)
	assert.Equal(t, 1.0, y)

	assert.Equal(t, 2.0, a.Width(0))
	assert.Equal(t, 0.0, a.Min(1))
	assert.Equal(t, 2.0, a.Max(1))
}

func TestBox_ValidRejectsNonFinite(t *testing.T) {
	assert.False(t, Box{0, 0, math.NaN(), 1}.Valid())
	assert.False(t, Box{math.Inf(-1), 0, 1, 1}.Valid())
}

func TestEntry_Equal(t *testing.T) {
	a := Entry{Box: Box{0, 0, 1, 1}, Locator: Locator{Offset: 0, Length: 10}}
	b := a
	assert.True(t, a.Equal(b))

	b.Locator.Length = 11
	assert.False(t, a.Equal(b))

	assert.Equal(t, "box(0,0,1,1)@0+10", a.String())
}

func TestLocator_Within(t *testing.T) {
	assert.True(t, Locator{Offset: 0, Length: 10}.Within(10))
	assert.False(t, Locator{Offset: 5, Length: 10}.Within(10))
	assert.False(t, Locator{Offset: 0, Length: 0}.Within(10))
	assert.False(t, Locator{Offset: 11, Length: 1}.Within(10))
	assert.Equal(t, uint64(22), Locator{Offset: 10, Length: 12}.End())
}
