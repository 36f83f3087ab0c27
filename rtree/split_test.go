//go:build unix

package rtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/spatialidx/geom"
	"github.com/hupe1980/spatialidx/testutil"
)

func TestSplitPolicies_GroupBounds(t *testing.T) {
	rng := testutil.NewRNG(21)

	for _, policy := range []SplitPolicy{LinearSplit{}, QuadraticSplit{}} {
		for _, cfg := range []Config{DefaultConfig(), {MaxEntries: 4, MinEntries: 2}, {MaxEntries: 32, MinEntries: 16}} {
			for range 50 {
				boxes := rng.Boxes(cfg.MaxEntries+1, 100)

				left, right := policy.Split(boxes, cfg.MinEntries)

				require.True(t, validPartition(left, right, len(boxes), cfg.MinEntries), "%T %+v", policy, cfg)
				assert.LessOrEqual(t, len(left), cfg.MaxEntries)
				assert.LessOrEqual(t, len(right), cfg.MaxEntries)
			}
		}
	}
}

func TestLinearSplit_SeparatesClusters(t *testing.T) {
	var boxes []geom.Box
	for i := range 9 {
		f := float64(i) * 0.1
		boxes = append(boxes, geom.Box{MinX: f, MinY: 0, MaxX: f + 0.1, MaxY: 1})
	}
	for i := range 8 {
		f := 100 + float64(i)*0.1
		boxes = append(boxes, geom.Box{MinX: f, MinY: 0, MaxX: f + 0.1, MaxY: 1})
	}

	left, right := LinearSplit{}.Split(boxes, 4)

	lc := geom.EmptyBox()
	for _, i := range left {
		lc = lc.Union(boxes[i])
	}
	rc := geom.EmptyBox()
	for _, i := range right {
		rc = rc.Union(boxes[i])
	}

	assert.False(t, lc.Intersects(rc), "left %s right %s", lc, rc)
	assert.Len(t, left, 9)
	assert.Len(t, right, 8)
}

func TestLinearSplit_DegenerateBoxes(t *testing.T) {
	boxes := make([]geom.Box, 17)
	for i := range boxes {
		boxes[i] = geom.PointBox(1, 1)
	}

	left, right := LinearSplit{}.Split(boxes, 4)
	require.True(t, validPartition(left, right, 17, 4))
}

func TestValidPartition(t *testing.T) {
	assert.True(t, validPartition([]int{0, 1}, []int{2, 3}, 4, 2))
	assert.False(t, validPartition([]int{0, 1, 2}, []int{3}, 4, 2))
	assert.False(t, validPartition([]int{0, 0}, []int{2, 3}, 4, 2))
	assert.False(t, validPartition([]int{0, 1}, []int{2, 4}, 4, 2))
}

type badPolicy struct{}

func (badPolicy) Split([]geom.Box, int) (left, right []int) {
	return []int{0}, nil
}

func TestInsert_FallsBackOnBadPolicy(t *testing.T) {
	tr := newTestTree(t, DefaultConfig(), WithSplitPolicy(badPolicy{}))

	for _, e := range testutil.NewRNG(22).Entries(200, 100) {
		require.NoError(t, tr.Insert(e))
	}
	require.NoError(t, tr.Validate())
}

func TestConfig(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	assert.ErrorIs(t, Config{MaxEntries: 3, MinEntries: 1}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{MaxEntries: 16, MinEntries: 0}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{MaxEntries: 16, MinEntries: 9}.Validate(), ErrInvalidConfig)

	assert.Equal(t, uint64(8+17*48), NodeSize(DefaultConfig()))
	assert.Equal(t, uint64(275), WorstCaseBytesPerEntry(DefaultConfig()))
}

func TestEvenGroups(t *testing.T) {
	assert.Equal(t, []int{17}, evenGroups(17, 17))
	assert.Equal(t, []int{9, 8}, evenGroups(17, 16))
	assert.Equal(t, []int{16, 16}, evenGroups(32, 16))
	assert.Equal(t, []int{11, 11, 11}, evenGroups(33, 16))
	assert.Equal(t, []int{1}, evenGroups(1, 16))
}
