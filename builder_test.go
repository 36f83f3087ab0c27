//go:build unix

package spatialidx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/spatialidx/geom"
	"github.com/hupe1980/spatialidx/internal/arena"
	"github.com/hupe1980/spatialidx/internal/fs"
	"github.com/hupe1980/spatialidx/internal/resource"
	"github.com/hupe1980/spatialidx/rtree"
	"github.com/hupe1980/spatialidx/snapshot"
	"github.com/hupe1980/spatialidx/store"
	"github.com/hupe1980/spatialidx/testutil"
)

func useSharedDir(t *testing.T) {
	t.Helper()

	old := store.SharedDir
	store.SharedDir = t.TempDir()
	t.Cleanup(func() { store.SharedDir = old })
}

func locators(entries []geom.Entry) []geom.Locator {
	out := make([]geom.Locator, len(entries))
	for i, e := range entries {
		out[i] = e.Locator
	}
	return out
}

func TestBuild_TwoFeatures(t *testing.T) {
	boxes := []geom.Box{geom.NewBox(0, 0, 1, 1), geom.NewBox(2, 2, 3, 3)}
	data, spans := testutil.FeatureCollection(boxes)
	path := testutil.WriteFile(t, "two.geojson", data)

	b := New()
	defer b.Close()

	idx, res, err := b.BuildIndex(t.Context(), path, ModeEphemeral)
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, uint64(2), res.EntryCount)
	assert.Equal(t, geom.NewBox(0, 0, 3, 3), res.Bounds)
	assert.Equal(t, 1, res.Height)
	assert.Equal(t, LoadBulk, res.Strategy)
	assert.Equal(t, len(data), res.SourceSize)
	assert.Empty(t, res.Key)

	assert.ElementsMatch(t, spans, locators(idx.Entries()))
	require.NoError(t, idx.Validate())
}

func TestBuild_EmptyCollection(t *testing.T) {
	path := testutil.WriteFile(t, "empty.geojson", []byte(`{"type":"FeatureCollection","features":[]}`))

	b := New()
	defer b.Close()

	res, err := b.Build(t.Context(), path, ModeEphemeral)
	require.NoError(t, err)

	assert.Zero(t, res.EntryCount)
	assert.True(t, res.Bounds.IsEmpty())
	assert.Zero(t, res.Height)
}

func TestBuild_FileIncremental(t *testing.T) {
	boxes := testutil.NewRNG(17).Points(17, 100)
	data, spans := testutil.FeatureCollection(boxes)
	path := testutil.WriteFile(t, "grid.geojson", data)

	b := New(WithFileCapacity(1 << 20))
	defer b.Close()

	res, err := b.Build(t.Context(), path, ModeFileIncremental)
	require.NoError(t, err)

	assert.Equal(t, IndexPath(path), res.Key)
	assert.Equal(t, LoadIncremental, res.Strategy)
	assert.Equal(t, uint64(17), res.EntryCount)
	assert.Equal(t, 2, res.Height)
	assert.Equal(t, uint64(1<<20), res.Capacity)

	idx, err := OpenIndex(IndexPath(path))
	require.NoError(t, err)
	defer idx.Close()

	assert.True(t, idx.ReadOnly())
	assert.Equal(t, uint64(17), idx.Size())
	assert.Equal(t, geom.UnionAll(boxes), idx.Bounds())
	assert.ElementsMatch(t, spans, locators(idx.Entries()))
	require.NoError(t, idx.Validate())

	st := idx.Stats()
	assert.Equal(t, uint64(17), st.Entries)
	assert.Equal(t, uint64(2), st.Leaves)
	assert.GreaterOrEqual(t, st.RootFanout, 2)
	assert.Equal(t, store.KindFile, st.Region.Kind)
}

func TestBuild_FileRebuildIsIdempotent(t *testing.T) {
	rng := testutil.NewRNG(7)
	path := testutil.WriteCollection(t, rng.Boxes(300, 1000))

	b := New(WithFileCapacity(1 << 20))
	defer b.Close()

	first, err := b.Build(t.Context(), path, ModeFileIncremental)
	require.NoError(t, err)

	second, err := b.Build(t.Context(), path, ModeFileIncremental)
	require.NoError(t, err)

	assert.Equal(t, first.EntryCount, second.EntryCount)
	assert.Equal(t, first.Bounds, second.Bounds)
	assert.Equal(t, first.Capacity, second.Capacity)

	idx, err := OpenIndex(IndexPath(path))
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, uint64(300), idx.Size())
	require.NoError(t, idx.Validate())
}

func TestBuild_FileRebuildWithNewConfig(t *testing.T) {
	rng := testutil.NewRNG(3)
	path := testutil.WriteCollection(t, rng.Boxes(100, 100))

	b := New(WithFileCapacity(1 << 20))
	_, err := b.Build(t.Context(), path, ModeFileIncremental)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	cfg := rtree.Config{MaxEntries: 8, MinEntries: 3}
	b = New(WithFileCapacity(1<<20), WithTreeConfig(cfg), WithSplitPolicy(rtree.QuadraticSplit{}))
	defer b.Close()

	_, err = b.Build(t.Context(), path, ModeFileIncremental)
	require.NoError(t, err)

	idx, err := OpenIndex(IndexPath(path))
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, cfg, idx.Config())
	assert.Equal(t, uint64(100), idx.Size())
	require.NoError(t, idx.Validate())
}

func TestBuild_LoadFailureClearsFileIndex(t *testing.T) {
	rng := testutil.NewRNG(11)
	dir := t.TempDir()
	path := filepath.Join(dir, "data.geojson")

	small, _ := testutil.FeatureCollection(rng.Boxes(10, 100))
	require.NoError(t, os.WriteFile(path, small, 0o600))

	b := New(WithFileCapacity(16<<10), WithOverhead(0), WithBytesPerEntry(1))
	defer b.Close()

	_, err := b.Build(t.Context(), path, ModeFileIncremental)
	require.NoError(t, err)

	large, _ := testutil.FeatureCollection(rng.Boxes(500, 100))
	require.NoError(t, os.WriteFile(path, large, 0o600))

	_, err = b.Build(t.Context(), path, ModeFileIncremental)

	var ae *AllocationError
	require.ErrorAs(t, err, &ae)
	assert.ErrorIs(t, err, arena.ErrArenaFull)
	assert.Equal(t, IndexPath(path), ae.Key)

	idx, err := OpenIndex(IndexPath(path))
	require.NoError(t, err)
	defer idx.Close()

	assert.Zero(t, idx.Size())
	require.NoError(t, idx.Validate())
}

func TestBuild_SharedCollision(t *testing.T) {
	useSharedDir(t)

	rng := testutil.NewRNG(5)
	path := testutil.WriteCollection(t, rng.Boxes(50, 10))

	b := New()
	defer b.Close()

	fileRes, err := b.Build(t.Context(), path, ModeFileIncremental)
	require.NoError(t, err)
	fileImage, err := os.ReadFile(fileRes.Key)
	require.NoError(t, err)

	res, err := b.Build(t.Context(), path, ModeSharedBulk)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Key, SegmentPrefix))
	assert.Equal(t, LoadBulk, res.Strategy)

	_, err = b.Build(t.Context(), path, ModeSharedBulk)

	var ae *AllocationError
	require.ErrorAs(t, err, &ae)
	assert.ErrorIs(t, err, ErrNameCollision)

	// The existing segment is untouched.
	idx, err := OpenSegment(res.Key)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), idx.Size())
	require.NoError(t, idx.Validate())
	require.NoError(t, idx.Close())

	// So is the file index built from the same source.
	after, err := os.ReadFile(fileRes.Key)
	require.NoError(t, err)
	assert.Equal(t, fileImage, after)

	fileIdx, err := OpenIndex(fileRes.Key)
	require.NoError(t, err)
	assert.Equal(t, fileRes.EntryCount, fileIdx.Size())
	assert.Equal(t, fileRes.Bounds, fileIdx.Bounds())
	require.NoError(t, fileIdx.Validate())
	require.NoError(t, fileIdx.Close())

	removed, err := b.RemoveSegment(path)
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = b.Build(t.Context(), path, ModeSharedBulk)
	require.NoError(t, err)
}

func TestBuild_SegmentGuard(t *testing.T) {
	useSharedDir(t)

	path := testutil.WriteCollection(t, testutil.Grid(4))

	b := New(WithSegmentName("guarded"))
	defer b.Close()

	guard, err := b.SegmentGuard(path)
	require.NoError(t, err)
	assert.Equal(t, "guarded", guard.Name())

	_, err = b.Build(t.Context(), path, ModeSharedBulk)
	require.NoError(t, err)
	assert.True(t, store.Exists(store.KindShared, "guarded"))

	require.NoError(t, guard.Release())
	assert.False(t, store.Exists(store.KindShared, "guarded"))
}

func TestBuild_Errors(t *testing.T) {
	dir := t.TempDir()

	b := New()
	defer b.Close()

	t.Run("usage", func(t *testing.T) {
		_, err := b.Build(t.Context(), "", ModeEphemeral)
		require.ErrorIs(t, err, ErrUsage)

		_, err = b.Build(t.Context(), "x.geojson", Mode(42))
		require.ErrorIs(t, err, ErrUsage)

		bad := New(WithTreeConfig(rtree.Config{MaxEntries: 4, MinEntries: 3}))
		defer bad.Close()
		_, err = bad.Build(t.Context(), "x.geojson", ModeEphemeral)
		require.ErrorIs(t, err, ErrUsage)
		require.ErrorIs(t, err, rtree.ErrInvalidConfig)
	})

	t.Run("missing source", func(t *testing.T) {
		_, err := b.Build(t.Context(), filepath.Join(dir, "missing.geojson"), ModeEphemeral)

		var me *MappingError
		require.ErrorAs(t, err, &me)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed", func(t *testing.T) {
		path := testutil.WriteFile(t, "bad.geojson", []byte(`{"type":"FeatureCollection","features":[{"type":"Feature",`))

		_, err := b.Build(t.Context(), path, ModeEphemeral)

		var pe *ParseError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, path, pe.Path)
		assert.GreaterOrEqual(t, pe.Offset, int64(0))
	})

	t.Run("not a collection", func(t *testing.T) {
		path := testutil.WriteFile(t, "feature.geojson", []byte(`{"type":"Feature","geometry":null}`))

		_, err := b.Build(t.Context(), path, ModeFileIncremental)

		var pe *ParseError
		require.ErrorAs(t, err, &pe)
		assert.NoFileExists(t, IndexPath(path))
	})

	t.Run("region too small", func(t *testing.T) {
		rng := testutil.NewRNG(1)
		path := testutil.WriteCollection(t, rng.Boxes(100, 10))

		small := New(WithOverhead(2048), WithBytesPerEntry(1))
		defer small.Close()

		_, err := small.Build(t.Context(), path, ModeEphemeral)

		var ae *AllocationError
		require.ErrorAs(t, err, &ae)
		assert.ErrorIs(t, err, arena.ErrArenaFull)
		assert.Equal(t, uint64(2048+100), ae.Capacity)
	})

	t.Run("memory limit", func(t *testing.T) {
		path := testutil.WriteCollection(t, testutil.Grid(4))

		limited := New(WithMemoryLimit(1024))
		defer limited.Close()

		_, err := limited.Build(t.Context(), path, ModeEphemeral)

		var ae *AllocationError
		require.ErrorAs(t, err, &ae)
		assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
	})

	t.Run("open fault", func(t *testing.T) {
		faulty := fs.NewFaultyFS(nil)
		faulty.AddRule(".index", fs.Fault{FailOnOpen: true})

		path := testutil.WriteCollection(t, testutil.Grid(4))

		broken := New(withFileSystem(faulty))
		defer broken.Close()

		_, err := broken.Build(t.Context(), path, ModeFileIncremental)
		require.Error(t, err)
		assert.NoFileExists(t, IndexPath(path))
	})
}

func TestBuild_MemoryBudgetReleased(t *testing.T) {
	path := testutil.WriteCollection(t, testutil.Grid(4))

	b := New(WithMemoryLimit(DefaultOverhead + 16*DefaultBulkBytesPerEntry))
	defer b.Close()

	idx, _, err := b.BuildIndex(t.Context(), path, ModeEphemeral)
	require.NoError(t, err)

	// The budget is held while the index is open.
	_, err = b.Build(t.Context(), path, ModeEphemeral)
	require.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)

	require.NoError(t, idx.Close())

	_, err = b.Build(t.Context(), path, ModeEphemeral)
	require.NoError(t, err)
}

func TestBuild_IncrementalOverride(t *testing.T) {
	rng := testutil.NewRNG(9)
	path := testutil.WriteCollection(t, rng.Points(500, 100))

	b := New(WithLoadStrategy(LoadIncremental), WithLogger(NewTextLogger(-8)))
	defer b.Close()

	idx, res, err := b.BuildIndex(t.Context(), path, ModeEphemeral)
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, LoadIncremental, res.Strategy)
	assert.Equal(t, rtree.WorstCaseBytesPerEntry(rtree.DefaultConfig()), res.EntrySize)
	assert.Equal(t, uint64(500), idx.Size())
	assert.GreaterOrEqual(t, idx.Height(), 3)
	require.NoError(t, idx.Validate())
}

func TestSnapshot_RoundTrip(t *testing.T) {
	rng := testutil.NewRNG(13)
	boxes := rng.Boxes(400, 1000)
	path := testutil.WriteCollection(t, boxes)

	b := New()
	defer b.Close()

	idx, _, err := b.BuildIndex(t.Context(), path, ModeEphemeral)
	require.NoError(t, err)
	defer idx.Close()

	for _, c := range []snapshot.Compression{snapshot.CompressionNone, snapshot.CompressionLZ4, snapshot.CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer

			_, err := idx.WriteSnapshot(t.Context(), &buf, c)
			require.NoError(t, err)

			target := filepath.Join(t.TempDir(), "restored.index")
			require.NoError(t, RestoreSnapshot(t.Context(), &buf, target))

			restored, err := OpenIndex(target)
			require.NoError(t, err)
			defer restored.Close()

			assert.Equal(t, idx.Size(), restored.Size())
			assert.Equal(t, idx.Bounds(), restored.Bounds())
			assert.ElementsMatch(t, idx.Entries(), restored.Entries())
		})
	}
}

func TestRestoreSnapshot_Corrupt(t *testing.T) {
	target := filepath.Join(t.TempDir(), "restored.index")

	err := RestoreSnapshot(t.Context(), strings.NewReader("not a snapshot at all, not even close to 32 bytes"), target)
	require.ErrorIs(t, err, snapshot.ErrInvalidMagic)
}

func TestRestoreSnapshot_InvalidTreeKeepsTarget(t *testing.T) {
	b := New()
	defer b.Close()

	existing := testutil.WriteCollection(t, testutil.NewRNG(21).Boxes(50, 100))
	res, err := b.Build(t.Context(), existing, ModeFileIncremental)
	require.NoError(t, err)
	target := IndexPath(existing)

	src, _, err := b.BuildIndex(t.Context(), testutil.WriteCollection(t, testutil.NewRNG(22).Boxes(50, 100)), ModeEphemeral)
	require.NoError(t, err)
	defer src.Close()

	rootAt := src.tree.Offset() + 24

	for name, root := range map[string]uint64{
		"beyond region": 1 << 40,
		"misaligned":    src.tree.Offset() + 4,
		"wrong level":   src.tree.Offset() + 8,
	} {
		t.Run(name, func(t *testing.T) {
			img := append([]byte(nil), src.store.Image()...)
			binary.NativeEndian.PutUint64(img[rootAt:], root)

			var buf bytes.Buffer
			_, err := snapshot.Write(&buf, img, snapshot.CompressionNone)
			require.NoError(t, err)

			require.NotPanics(t, func() {
				err = RestoreSnapshot(t.Context(), &buf, target)
			})
			require.ErrorIs(t, err, rtree.ErrInvalidTree)
			assert.NoFileExists(t, target+".restore")

			idx, err := OpenIndex(target)
			require.NoError(t, err)
			defer idx.Close()

			assert.Equal(t, res.EntryCount, idx.Size())
			assert.Equal(t, res.Bounds, idx.Bounds())
			assert.NoError(t, idx.Validate())
		})
	}
}

func TestOpenIndex_NotFound(t *testing.T) {
	_, err := OpenIndex(filepath.Join(t.TempDir(), "missing.index"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenIndex_NoTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bare.index")

	s, err := store.OpenOrCreate(store.KindFile, path, 64<<10)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = OpenIndex(path)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, rtree.ErrNotFound)
}

func TestSegmentKey(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	abs, err := SegmentKey(filepath.Join(dir, "a.geojson"))
	require.NoError(t, err)

	rel, err := SegmentKey("a.geojson")
	require.NoError(t, err)

	other, err := SegmentKey("b.geojson")
	require.NoError(t, err)

	assert.Equal(t, abs, rel)
	assert.NotEqual(t, abs, other)
	assert.True(t, strings.HasPrefix(abs, SegmentPrefix))
	assert.Len(t, abs, len(SegmentPrefix)+16)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"ephemeral", ModeEphemeral},
		{"file", ModeFileIncremental},
		{"SHARED", ModeSharedBulk},
		{" shared-bulk ", ModeSharedBulk},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.NotEmpty(t, got.String())
	}

	_, err := ParseMode("disk")
	require.ErrorIs(t, err, ErrUsage)
	assert.Equal(t, "Mode(9)", Mode(9).String())
}

func TestMetrics(t *testing.T) {
	mc := &BasicMetricsCollector{}

	good := testutil.WriteCollection(t, testutil.Grid(3))
	bad := testutil.WriteFile(t, "bad.geojson", []byte(`[]`))

	b := New(WithMetricsCollector(mc))
	defer b.Close()

	idx, _, err := b.BuildIndex(t.Context(), good, ModeEphemeral)
	require.NoError(t, err)

	_, err = idx.WriteSnapshot(t.Context(), &bytes.Buffer{}, snapshot.CompressionNone)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = b.Build(t.Context(), bad, ModeEphemeral)
	require.Error(t, err)

	stats := mc.GetStats()
	assert.Equal(t, int64(2), stats.ExtractCount)
	assert.Equal(t, int64(1), stats.ExtractErrors)
	assert.Equal(t, int64(9), stats.ExtractEntries)
	assert.Equal(t, int64(1), stats.LoadCount)
	assert.Equal(t, int64(2), stats.BuildCount)
	assert.Equal(t, int64(1), stats.BuildErrors)
	assert.Equal(t, int64(9), stats.BuildEntries)
	assert.Equal(t, int64(1), stats.SnapshotCount)
	assert.Positive(t, stats.SnapshotBytes)
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError(nil, "p", "k", 0))

	err := translateError(&store.CollisionError{Kind: store.KindShared, Name: "n"}, "p", "n", 10)
	var ae *AllocationError
	require.ErrorAs(t, err, &ae)
	assert.ErrorIs(t, err, ErrNameCollision)
	assert.Contains(t, err.Error(), "allocate n (10 bytes)")

	err = translateError(rtree.ErrInvalidEntry, "p", "", 0)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, int64(-1), pe.Offset)

	other := errors.New("boom")
	assert.Equal(t, other, translateError(other, "p", "k", 0))
}
