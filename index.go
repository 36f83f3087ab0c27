package spatialidx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/hupe1980/spatialidx/geom"
	"github.com/hupe1980/spatialidx/internal/resource"
	"github.com/hupe1980/spatialidx/rtree"
	"github.com/hupe1980/spatialidx/snapshot"
	"github.com/hupe1980/spatialidx/store"
)

// Index is a handle to a built spatial index and the region holding it.
type Index struct {
	store   *store.Store
	tree    *rtree.Tree
	opts    options
	release func()
}

// IndexStats combines tree shape and region usage.
type IndexStats struct {
	rtree.Stats
	Region store.Stats
}

// OpenIndex opens a file-backed index read-only.
func OpenIndex(indexPath string, optFns ...Option) (*Index, error) {
	return openIndex(store.KindFile, indexPath, optFns)
}

// OpenSegment opens a shared-memory index read-only.
func OpenSegment(name string, optFns ...Option) (*Index, error) {
	return openIndex(store.KindShared, name, optFns)
}

func openIndex(kind store.Kind, name string, optFns []Option) (*Index, error) {
	opts := applyOptions(optFns)

	s, err := store.OpenReadOnly(kind, name,
		store.WithFileSystem(opts.fs),
		store.WithLogger(opts.logger.Logger),
	)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, err
	}

	tree, err := rtree.Open(s, rtree.DefaultTag, rtree.WithSplitPolicy(opts.split))
	if err != nil {
		_ = s.Close()
		return nil, translateError(err, "", name, s.Capacity())
	}

	return &Index{store: s, tree: tree, opts: opts}, nil
}

// Key returns the name of the backing region.
func (idx *Index) Key() string { return idx.store.Name() }

// ReadOnly reports whether the index was opened for reading only.
func (idx *Index) ReadOnly() bool { return idx.store.ReadOnly() }

// Size returns the number of indexed entries.
func (idx *Index) Size() uint64 { return idx.tree.Size() }

// Bounds returns the union of all indexed boxes.
func (idx *Index) Bounds() geom.Box { return idx.tree.Bounds() }

// Height returns the number of tree levels, 0 when empty.
func (idx *Index) Height() int { return idx.tree.Height() }

// Config returns the fan-out bounds stored with the tree.
func (idx *Index) Config() rtree.Config { return idx.tree.Config() }

// Stats walks the tree and reports its shape together with region usage.
func (idx *Index) Stats() IndexStats {
	return IndexStats{
		Stats:  idx.tree.Stats(),
		Region: idx.store.Stats(),
	}
}

// Walk calls fn for every entry until fn returns false.
func (idx *Index) Walk(fn func(geom.Entry) bool) { idx.tree.Walk(fn) }

// Entries returns all entries in tree order.
func (idx *Index) Entries() []geom.Entry { return idx.tree.Entries() }

// Validate checks the structural invariants of the stored tree.
func (idx *Index) Validate() error { return idx.tree.Validate() }

// WriteSnapshot writes a compressed copy of the region to w.
func (idx *Index) WriteSnapshot(ctx context.Context, w io.Writer, c snapshot.Compression) (snapshot.Header, error) {
	start := time.Now()

	h, err := snapshot.Write(resource.NewRateLimitedWriter(ctx, w, idx.opts.resources), idx.store.Image(), c)

	idx.opts.metrics.RecordSnapshot(h.StoredSize, time.Since(start), err)
	idx.opts.logger.LogSnapshot(ctx, "write", h.StoredSize, err)

	if err != nil {
		return snapshot.Header{}, fmt.Errorf("snapshot %s: %w", idx.Key(), err)
	}

	return h, nil
}

// Close unmaps the region. Shared segments and index files stay in place.
func (idx *Index) Close() error {
	if idx.store == nil {
		return nil
	}

	err := idx.store.Close()
	idx.store = nil

	if idx.release != nil {
		idx.release()
		idx.release = nil
	}

	return err
}

// RestoreSnapshot reads a snapshot from r and writes it to indexPath as a
// file-backed index. The index is validated before it replaces any file
// already at indexPath; on failure that file is left as it was.
func RestoreSnapshot(ctx context.Context, r io.Reader, indexPath string, optFns ...Option) (err error) {
	opts := applyOptions(optFns)
	start := time.Now()

	var h snapshot.Header
	defer func() {
		opts.metrics.RecordSnapshot(h.StoredSize, time.Since(start), err)
		opts.logger.LogSnapshot(ctx, "restore", h.StoredSize, err)
	}()

	image, h, err := snapshot.Read(resource.NewRateLimitedReader(ctx, r, opts.resources))
	if err != nil {
		return fmt.Errorf("restore %s: %w", indexPath, err)
	}

	verify := func(s *store.Store) error {
		tree, err := rtree.Open(s, rtree.DefaultTag)
		if err != nil {
			return err
		}
		return tree.Validate()
	}

	if err := store.Restore(store.KindFile, indexPath, image,
		store.WithFileSystem(opts.fs), store.WithVerify(verify)); err != nil {
		return fmt.Errorf("restore %s: %w", indexPath, err)
	}

	return nil
}
