package spatialidx

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/time/rate"

	"github.com/hupe1980/spatialidx/geom"
	"github.com/hupe1980/spatialidx/internal/conv"
	"github.com/hupe1980/spatialidx/internal/mmap"
	"github.com/hupe1980/spatialidx/internal/source"
	"github.com/hupe1980/spatialidx/rtree"
	"github.com/hupe1980/spatialidx/store"
)

// IndexSuffix is appended to the source path to name a file-backed index.
const IndexSuffix = ".index"

// SegmentPrefix starts every derived shared-segment name.
const SegmentPrefix = "spatial-index-"

// progressInterval throttles incremental load progress logs.
const progressInterval = 2 * time.Second

// BuildResult describes a completed build.
type BuildResult struct {
	Mode       Mode
	Strategy   LoadStrategy
	Key        string // region name: index path, segment name or "" for ephemeral
	EntryCount uint64
	Bounds     geom.Box
	Height     int
	Nodes      uint64
	EntrySize  uint64 // bytes reserved per entry in the capacity estimate
	Capacity   uint64 // region size in bytes
	Used       uint64 // region bytes holding the tree
	SourceSize int
	Elapsed    time.Duration
}

// Builder turns GeoJSON files into spatial indexes. A Builder may run builds
// for different keys concurrently; builds for the same key must be serialized
// by the caller.
type Builder struct {
	opts  options
	cache *source.Cache
}

// New creates a Builder.
func New(optFns ...Option) *Builder {
	return &Builder{
		opts:  applyOptions(optFns),
		cache: source.NewCache(),
	}
}

// Close releases the source mappings held by the builder.
func (b *Builder) Close() error {
	return b.cache.Close()
}

// IndexPath returns the file that ModeFileIncremental writes for path.
func IndexPath(path string) string {
	return path + IndexSuffix
}

// SegmentKey derives the shared-segment name for a source path. The name
// depends on the absolute path only.
func SegmentKey(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUsage, err)
	}

	return fmt.Sprintf("%s%016x", SegmentPrefix, xxhash.Sum64String(abs)), nil
}

// SegmentName returns the shared-segment name this builder uses for path.
func (b *Builder) SegmentName(path string) (string, error) {
	if b.opts.segmentName != "" {
		return b.opts.segmentName, nil
	}
	return SegmentKey(path)
}

// RemoveSegment deletes the shared segment built from path. It reports
// whether a segment existed.
func (b *Builder) RemoveSegment(path string) (bool, error) {
	name, err := b.SegmentName(path)
	if err != nil {
		return false, err
	}

	return store.Remove(store.KindShared, name, b.storeOptions()...)
}

// SegmentGuard removes any shared segment for path now and again when the
// returned guard is released.
func (b *Builder) SegmentGuard(path string) (*store.RemovalGuard, error) {
	name, err := b.SegmentName(path)
	if err != nil {
		return nil, err
	}

	return store.NewRemovalGuard(store.KindShared, name, b.storeOptions()...), nil
}

// Build indexes the features of the GeoJSON file at path into the region
// selected by mode. The build runs to completion; ctx only carries values
// for logging.
func (b *Builder) Build(ctx context.Context, path string, mode Mode) (*BuildResult, error) {
	idx, res, err := b.BuildIndex(ctx, path, mode)
	if err != nil {
		return nil, err
	}

	if err := idx.Close(); err != nil {
		return nil, err
	}

	return res, nil
}

// BuildIndex is like Build but leaves the region mapped and returns a handle
// to it. The caller must Close the index.
func (b *Builder) BuildIndex(ctx context.Context, path string, mode Mode) (_ *Index, _ *BuildResult, err error) {
	start := time.Now()
	logger := b.opts.logger.WithMode(mode).WithSource(path)

	var res *BuildResult
	defer func() {
		entries := 0
		if res != nil {
			entries = int(res.EntryCount) //nolint:gosec // bounded by the source size
		}
		b.opts.metrics.RecordBuild(mode, entries, time.Since(start), err)
		logger.LogBuild(ctx, res, err)
	}()

	if path == "" {
		return nil, nil, fmt.Errorf("%w: empty source path", ErrUsage)
	}
	if !mode.valid() {
		return nil, nil, fmt.Errorf("%w: unknown mode %d", ErrUsage, int(mode))
	}
	if err := b.opts.tree.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}

	data, err := b.cache.Map(path)
	if err != nil {
		return nil, nil, &MappingError{Path: path, cause: err}
	}
	defer func() { _ = b.cache.Release(path) }()

	entries, err := b.extract(ctx, logger, path, data)
	if err != nil {
		return nil, nil, err
	}

	strategy := b.opts.strategy
	if strategy == LoadAuto {
		strategy = mode.defaultStrategy()
	}

	entrySize := b.bytesPerEntry(strategy)
	capacity := b.capacity(mode, entrySize, len(entries))

	key, err := b.key(path, mode)
	if err != nil {
		return nil, nil, err
	}

	budget, err := conv.Uint64ToInt64(capacity)
	if err != nil {
		return nil, nil, translateError(err, path, key, capacity)
	}
	if err := b.opts.resources.AcquireMemory(budget); err != nil {
		return nil, nil, translateError(err, path, key, capacity)
	}
	release := func() { b.opts.resources.ReleaseMemory(budget) }

	s, err := b.open(mode, key, capacity, strategy)
	if err != nil {
		release()
		return nil, nil, translateError(err, path, key, capacity)
	}

	idx, err := b.load(ctx, logger, s, entries, strategy)
	if err != nil {
		_ = s.Close()
		release()
		return nil, nil, translateError(err, path, key, capacity)
	}
	idx.release = release

	if err := s.Sync(); err != nil {
		_ = idx.Close()
		return nil, nil, fmt.Errorf("sync %s: %w", key, err)
	}

	rs := s.Stats()
	res = &BuildResult{
		Mode:       mode,
		Strategy:   strategy,
		Key:        key,
		EntryCount: idx.tree.Size(),
		Bounds:     idx.tree.Bounds(),
		Height:     idx.tree.Height(),
		Nodes:      idx.tree.Nodes(),
		EntrySize:  entrySize,
		Capacity:   rs.Capacity,
		Used:       rs.Used,
		SourceSize: len(data),
		Elapsed:    time.Since(start),
	}

	return idx, res, nil
}

func (b *Builder) extract(ctx context.Context, logger *Logger, path string, data []byte) ([]geom.Entry, error) {
	start := time.Now()

	entries, err := b.opts.extractor.Extract(data)

	elapsed := time.Since(start)
	b.opts.metrics.RecordExtract(len(data), len(entries), elapsed, err)
	logger.LogExtract(ctx, len(data), len(entries), elapsed, err)

	if err != nil {
		var pe *ParseError
		if perr := translateError(err, path, "", 0); errors.As(perr, &pe) {
			return nil, pe
		}
		return nil, &ParseError{Path: path, Offset: -1, cause: err}
	}

	return entries, nil
}

func (b *Builder) bytesPerEntry(strategy LoadStrategy) uint64 {
	if b.opts.bytesPerEntry > 0 {
		return b.opts.bytesPerEntry
	}
	if strategy == LoadIncremental {
		return rtree.WorstCaseBytesPerEntry(b.opts.tree)
	}
	return DefaultBulkBytesPerEntry
}

func (b *Builder) capacity(mode Mode, entrySize uint64, n int) uint64 {
	capacity := b.opts.overhead + entrySize*uint64(n) //nolint:gosec // n is a slice length
	if mode == ModeFileIncremental {
		capacity = max(capacity, b.opts.fileCapacity)
	}
	return capacity
}

func (b *Builder) key(path string, mode Mode) (string, error) {
	switch mode {
	case ModeFileIncremental:
		return IndexPath(path), nil
	case ModeSharedBulk:
		return b.SegmentName(path)
	default:
		return "", nil
	}
}

func (b *Builder) open(mode Mode, key string, capacity uint64, strategy LoadStrategy) (*store.Store, error) {
	opts := b.storeOptions()
	if strategy == LoadIncremental {
		opts = append(opts, store.WithAdvice(mmap.AccessRandom))
	}

	switch mode {
	case ModeSharedBulk:
		return store.CreateOnly(store.KindShared, key, capacity, opts...)
	default:
		return store.OpenOrCreate(mode.kind(), key, capacity, opts...)
	}
}

// load finds or constructs the tree in s and fills it with entries. An
// existing tree is emptied first; one with a different configuration is
// reset to the builder's.
func (b *Builder) load(ctx context.Context, logger *Logger, s *store.Store, entries []geom.Entry, strategy LoadStrategy) (*Index, error) {
	cfg := b.opts.tree

	tree, found, err := rtree.FindOrCreate(s, rtree.DefaultTag, cfg, rtree.WithSplitPolicy(b.opts.split))
	if err != nil {
		return nil, err
	}

	logger.LogRegion(ctx, s.Name(), s.Capacity(), found)

	if found {
		if tree.Config() != cfg {
			err = tree.Reset(cfg)
		} else {
			err = tree.Clear()
		}
		if err != nil {
			return nil, err
		}
	}

	start := time.Now()

	switch strategy {
	case LoadIncremental:
		err = b.insertAll(ctx, logger, tree, entries)
	default:
		err = tree.BulkLoad(entries)
	}

	elapsed := time.Since(start)
	b.opts.metrics.RecordLoad(strategy, len(entries), elapsed, err)
	logger.LogLoad(ctx, strategy, len(entries), elapsed, err)

	if err != nil {
		_ = tree.Clear()
		return nil, err
	}

	return &Index{store: s, tree: tree, opts: b.opts}, nil
}

func (b *Builder) insertAll(ctx context.Context, logger *Logger, tree *rtree.Tree, entries []geom.Entry) error {
	progress := rate.Sometimes{Interval: progressInterval}

	for i, e := range entries {
		if err := tree.Insert(e); err != nil {
			return fmt.Errorf("insert entry %d (%s): %w", i, e.Locator, err)
		}

		progress.Do(func() { logger.LogProgress(ctx, i+1, len(entries)) })
	}

	return nil
}

func (b *Builder) storeOptions() []store.Option {
	return []store.Option{
		store.WithFileSystem(b.opts.fs),
		store.WithLogger(b.opts.logger.Logger),
	}
}
