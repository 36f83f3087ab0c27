package rtree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/spatialidx/geom"
	"github.com/hupe1980/spatialidx/internal/arena"
	"github.com/hupe1980/spatialidx/store"
)

// DefaultTag is the name the tree metadata is published under.
const DefaultTag = "spatial-index"

const metaVersion = 1

// maxHeight bounds the stored height; a tree with fan-out 2 this deep would
// hold more entries than any region can.
const maxHeight = 64

var metaMagic = binary.NativeEndian.Uint32([]byte("SPXT"))

var (
	// ErrNotFound is returned by Open when no tree is bound to the tag.
	ErrNotFound = errors.New("rtree: tree not found")
	// ErrInvalidMeta is returned when the bound object is not a tree.
	ErrInvalidMeta = errors.New("rtree: invalid tree metadata")
	// ErrInvalidEntry is returned for entries whose box is not finite and ordered.
	ErrInvalidEntry = errors.New("rtree: invalid entry")
	// ErrInvalidTree is returned by Validate when an invariant does not hold.
	ErrInvalidTree = errors.New("rtree: invariant violated")
)

// Allocator is the region interface a tree draws its nodes from.
// *store.Store implements it.
type Allocator interface {
	Alloc(size uint64) (uint64, error)
	Free(off, size uint64) error
	Bytes(off, size uint64) []byte
	Pointer(off uint64) unsafe.Pointer
}

// meta is the tree root object stored in the region.
type meta struct {
	Magic      uint32
	Version    uint32
	MaxEntries uint32
	MinEntries uint32
	Height     uint32
	_          uint32
	Root       uint64
	Size       uint64
	Nodes      uint64
	Bounds     geom.Box
}

func (m *meta) init(cfg Config) {
	*m = meta{
		Magic:      metaMagic,
		Version:    metaVersion,
		MaxEntries: uint32(cfg.MaxEntries), //nolint:gosec // validated config
		MinEntries: uint32(cfg.MinEntries), //nolint:gosec // validated config
		Bounds:     geom.EmptyBox(),
	}
}

func (m *meta) config() Config {
	return Config{MaxEntries: int(m.MaxEntries), MinEntries: int(m.MinEntries)}
}

func (m *meta) check() error {
	if m.Magic != metaMagic {
		return fmt.Errorf("%w: bad magic", ErrInvalidMeta)
	}
	if m.Version != metaVersion {
		return fmt.Errorf("%w: version %d", ErrInvalidMeta, m.Version)
	}
	if err := m.config().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMeta, err)
	}
	return nil
}

// Option configures a tree handle. Options are not persisted.
type Option func(*Tree)

// WithSplitPolicy selects the node split heuristic. LinearSplit is the default.
func WithSplitPolicy(p SplitPolicy) Option {
	return func(t *Tree) {
		if p != nil {
			t.split = p
		}
	}
}

// Tree is a handle to an R-tree stored in a region.
//
// A Tree has a single writer. It keeps only the metadata offset; every node
// and the metadata itself are resolved through the allocator on use.
type Tree struct {
	alloc   Allocator
	metaOff uint64
	split   SplitPolicy
}

// Create allocates a new, unnamed tree in alloc.
func Create(alloc Allocator, cfg Config, opts ...Option) (*Tree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	off, err := alloc.Alloc(uint64(unsafe.Sizeof(meta{})))
	if err != nil {
		return nil, err
	}

	t := newTree(alloc, off, opts)
	t.meta().init(cfg)

	return t, nil
}

// FindOrCreate returns the tree bound to tag in s, constructing an empty one
// with cfg when none exists. An existing tree keeps its stored config; found
// reports which case applied.
func FindOrCreate(s *store.Store, tag string, cfg Config, opts ...Option) (*Tree, bool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}

	off, found, err := store.FindOrConstruct(s, tag, func(m *meta) { m.init(cfg) })
	if err != nil {
		return nil, false, err
	}

	if !found {
		return newTree(s, off, opts), false, nil
	}

	t, err := attach(s, off, opts)
	if err != nil {
		return nil, true, err
	}

	return t, true, nil
}

// Open returns the existing tree bound to tag.
func Open(s *store.Store, tag string, opts ...Option) (*Tree, error) {
	off, ok := s.Find(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, tag)
	}

	return attach(s, off, opts)
}

// attach wraps stored metadata after checking that it and the root node lie
// inside the region.
func attach(alloc Allocator, off uint64, opts []Option) (*Tree, error) {
	if alloc.Bytes(off, uint64(unsafe.Sizeof(meta{}))) == nil {
		return nil, fmt.Errorf("%w: offset %d outside the region", ErrInvalidMeta, off)
	}

	t := newTree(alloc, off, opts)
	if err := t.meta().check(); err != nil {
		return nil, err
	}

	if err := t.checkRoot(); err != nil {
		return nil, err
	}

	return t, nil
}

func newTree(alloc Allocator, off uint64, opts []Option) *Tree {
	t := &Tree{alloc: alloc, metaOff: off, split: LinearSplit{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tree) meta() *meta {
	return (*meta)(t.alloc.Pointer(t.metaOff))
}

// Config returns the stored fan-out configuration.
func (t *Tree) Config() Config { return t.meta().config() }

// Size returns the number of entries.
func (t *Tree) Size() uint64 { return t.meta().Size }

// Height returns the number of levels; 0 for an empty tree.
func (t *Tree) Height() int { return int(t.meta().Height) }

// Bounds returns the union of all entry boxes, or geom.EmptyBox for an
// empty tree.
func (t *Tree) Bounds() geom.Box { return t.meta().Bounds }

// Nodes returns the number of allocated nodes.
func (t *Tree) Nodes() uint64 { return t.meta().Nodes }

// Offset returns the region offset of the tree metadata.
func (t *Tree) Offset() uint64 { return t.metaOff }

func (t *Tree) nodeSize() uint64 { return NodeSize(t.Config()) }

func (t *Tree) node(off uint64) node {
	p := t.alloc.Pointer(off)
	return node{
		off:   off,
		hdr:   (*nodeHeader)(p),
		slots: unsafe.Slice((*slot)(unsafe.Add(p, nodeHeaderSize)), t.meta().MaxEntries+1),
	}
}

// nodeAt is node for offsets read back from the region. It fails with
// ErrInvalidTree unless a whole aligned node fits between the region header
// and the end of the region.
func (t *Tree) nodeAt(off uint64) (node, error) {
	if off < arena.HeaderSize || off%arena.Alignment != 0 || t.alloc.Bytes(off, t.nodeSize()) == nil {
		return node{}, fmt.Errorf("%w: node offset %d outside the region", ErrInvalidTree, off)
	}
	return t.node(off), nil
}

// child resolves off as a node at level, reporting false for anything that
// is out of range, at the wrong level or overfull.
func (t *Tree) child(off uint64, level uint32) (node, bool) {
	n, err := t.nodeAt(off)
	if err != nil {
		return node{}, false
	}
	return n, n.hdr.Level == level && n.count() <= int(t.meta().MaxEntries)
}

// checkRoot verifies the stored height and root node.
func (t *Tree) checkRoot() error {
	m := t.meta()
	if m.Root == 0 {
		return nil
	}

	if m.Height == 0 || m.Height > maxHeight {
		return fmt.Errorf("%w: root %d with height %d", ErrInvalidTree, m.Root, m.Height)
	}

	n, err := t.nodeAt(m.Root)
	if err != nil {
		return err
	}

	if n.hdr.Level != m.Height-1 {
		return fmt.Errorf("%w: root %d at level %d, height %d", ErrInvalidTree, m.Root, n.hdr.Level, m.Height)
	}

	return nil
}

func (t *Tree) newNode(off uint64, level uint32) node {
	n := t.node(off)
	n.hdr.Level = level
	n.hdr.Count = 0
	return n
}

func (t *Tree) readOnly() bool {
	ro, ok := t.alloc.(interface{ ReadOnly() bool })
	return ok && ro.ReadOnly()
}

// reserve allocates count nodes up front. On failure nothing stays allocated.
func (t *Tree) reserve(count int) ([]uint64, error) {
	size := t.nodeSize()
	offs := make([]uint64, 0, count)

	for range count {
		off, err := t.alloc.Alloc(size)
		if err != nil {
			t.release(offs)
			return nil, err
		}
		offs = append(offs, off)
	}

	return offs, nil
}

func (t *Tree) release(offs []uint64) {
	size := t.nodeSize()
	for _, off := range offs {
		_ = t.alloc.Free(off, size)
	}
}

// Clear frees every node and leaves an empty tree with the same config.
func (t *Tree) Clear() error {
	if t.readOnly() {
		return store.ErrReadOnly
	}

	m := t.meta()
	if m.Root != 0 && m.Height > 0 {
		var offs []uint64
		t.collect(m.Root, m.Height-1, roaring64.New(), &offs)
		t.release(offs)
	}

	m.Root = 0
	m.Height = 0
	m.Size = 0
	m.Nodes = 0
	m.Bounds = geom.EmptyBox()

	return nil
}

// Reset clears the tree and adopts cfg.
func (t *Tree) Reset(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := t.Clear(); err != nil {
		return err
	}

	m := t.meta()
	m.MaxEntries = uint32(cfg.MaxEntries) //nolint:gosec // validated config
	m.MinEntries = uint32(cfg.MinEntries) //nolint:gosec // validated config

	return nil
}

// collect gathers the offsets of reachable nodes once each. Slots that do
// not resolve to a node one level down are not followed.
func (t *Tree) collect(off uint64, level uint32, seen *roaring64.Bitmap, offs *[]uint64) {
	n, ok := t.child(off, level)
	if !ok || seen.Contains(off) {
		return
	}
	seen.Add(off)

	if !n.leaf() {
		for _, s := range n.live() {
			t.collect(s.Ref, level-1, seen, offs)
		}
	}
	*offs = append(*offs, off)
}
