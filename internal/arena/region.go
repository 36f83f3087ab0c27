package arena

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"

	"github.com/hupe1980/spatialidx/internal/conv"
)

var (
	// ErrArenaFull is returned when an allocation does not fit in the region.
	ErrArenaFull = errors.New("arena: region is full")
	// ErrInvalidMagic is returned when attaching to bytes that are not a region.
	ErrInvalidMagic = errors.New("arena: invalid magic")
	// ErrInvalidVersion is returned for a region written by an unknown format version.
	ErrInvalidVersion = errors.New("arena: unsupported version")
	// ErrCorrupt is returned when header fields disagree with the mapping.
	ErrCorrupt = errors.New("arena: corrupt header")
	// ErrInvalidSize is returned for zero-sized or oversized requests.
	ErrInvalidSize = errors.New("arena: invalid size")
	// ErrInvalidOffset is returned when freeing an offset the region never handed out.
	ErrInvalidOffset = errors.New("arena: invalid offset")
	// ErrMisaligned is returned when the backing bytes are not 8-byte aligned.
	ErrMisaligned = errors.New("arena: misaligned buffer")
	// ErrNameTooLong is returned when a directory name exceeds MaxNameLen.
	ErrNameTooLong = errors.New("arena: name too long")
	// ErrNameExists is returned when binding a name that is already bound.
	ErrNameExists = errors.New("arena: name already bound")
	// ErrDirectoryFull is returned when all directory slots are taken.
	ErrDirectoryFull = errors.New("arena: directory full")
)

const (
	// Version is the current region format version.
	Version = 1
	// HeaderSize is the space reserved for the header; the first allocation starts here.
	HeaderSize = 1024
	// Alignment of every allocation.
	Alignment = 8
	// NumClasses is the number of exact-size free lists.
	NumClasses = 16
	// NumNames is the number of named-object slots.
	NumNames = 8
	// MaxNameLen is the longest name the directory accepts.
	MaxNameLen = 31
)

// magic is "SPXR" read as a native-endian uint32.
var magic = binary.NativeEndian.Uint32([]byte("SPXR"))

type freeClass struct {
	Size uint64
	Head uint64
}

type nameSlot struct {
	Name [MaxNameLen + 1]byte
	Off  uint64
	Size uint64
}

// header is the on-region layout at offset 0.
type header struct {
	Magic    uint32
	Version  uint32
	Capacity uint64
	Top      uint64
	Used     uint64
	Allocs   uint64
	Leaked   uint64
	Classes  [NumClasses]freeClass
	Names    [NumNames]nameSlot
}

var _ [HeaderSize - unsafe.Sizeof(header{})]byte

// Stats describes region usage.
type Stats struct {
	Capacity uint64 // Total region size including the header
	Top      uint64 // High-water mark of the bump pointer
	Used     uint64 // Bytes held by live allocations
	Free     uint64 // Bytes parked on free lists
	Allocs   uint64 // Live allocation count
	Leaked   uint64 // Freed bytes that no free-list class could hold
	Named    int    // Bound directory entries
}

// Region is an allocator view over a contiguous byte slice.
type Region struct {
	buf []byte
	hdr *header
}

// Format initializes a new region over buf, discarding anything it held.
func Format(buf []byte) (*Region, error) {
	if err := checkBuffer(buf); err != nil {
		return nil, err
	}

	clear(buf[:HeaderSize])

	r := &Region{buf: buf, hdr: (*header)(unsafe.Pointer(&buf[0]))}
	r.hdr.Magic = magic
	r.hdr.Version = Version
	r.hdr.Capacity = uint64(len(buf))
	r.hdr.Top = HeaderSize

	return r, nil
}

// Attach opens an existing region stored in buf.
// It does not write to buf, so read-only mappings are safe to attach.
func Attach(buf []byte) (*Region, error) {
	if err := checkBuffer(buf); err != nil {
		return nil, err
	}

	hdr := (*header)(unsafe.Pointer(&buf[0]))
	if hdr.Magic != magic {
		return nil, ErrInvalidMagic
	}

	if hdr.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, hdr.Version)
	}

	size := uint64(len(buf))
	if hdr.Capacity < HeaderSize || hdr.Capacity > size {
		return nil, fmt.Errorf("%w: capacity %d, mapped %d", ErrCorrupt, hdr.Capacity, size)
	}

	if hdr.Top < HeaderSize || hdr.Top > hdr.Capacity || hdr.Used > hdr.Top {
		return nil, fmt.Errorf("%w: top %d, used %d", ErrCorrupt, hdr.Top, hdr.Used)
	}

	return &Region{buf: buf[:hdr.Capacity], hdr: hdr}, nil
}

// Inspect validates a region image, as returned by Image, and returns the
// capacity it was created with. The image may be shorter than the capacity
// but must reach the recorded high-water mark.
func Inspect(image []byte) (uint64, error) {
	if len(image) < HeaderSize {
		return 0, fmt.Errorf("%w: image of %d bytes", ErrCorrupt, len(image))
	}

	var hdr header
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&hdr)), unsafe.Sizeof(hdr)), image)

	if hdr.Magic != magic {
		return 0, ErrInvalidMagic
	}

	if hdr.Version != Version {
		return 0, fmt.Errorf("%w: %d", ErrInvalidVersion, hdr.Version)
	}

	if hdr.Top < HeaderSize || hdr.Top > hdr.Capacity || uint64(len(image)) < hdr.Top {
		return 0, fmt.Errorf("%w: top %d, capacity %d, image %d", ErrCorrupt, hdr.Top, hdr.Capacity, len(image))
	}

	return hdr.Capacity, nil
}

func checkBuffer(buf []byte) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("%w: %d bytes is smaller than the header", ErrInvalidSize, len(buf))
	}

	if uintptr(unsafe.Pointer(&buf[0]))%Alignment != 0 {
		return ErrMisaligned
	}

	return nil
}

// Capacity returns the total region size.
func (r *Region) Capacity() uint64 {
	return r.hdr.Capacity
}

// Alloc reserves size bytes (rounded up to Alignment) and returns the offset.
// The memory is zeroed. Exact-size free blocks are reused before the bump
// pointer advances.
func (r *Region) Alloc(size uint64) (uint64, error) {
	if size == 0 || size > r.hdr.Capacity {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	size = alignUp(size)

	if c := r.class(size); c != nil && c.Head != 0 {
		off := c.Head
		c.Head = r.word(off)
		r.account(off, size)
		return off, nil
	}

	if size > r.hdr.Capacity-r.hdr.Top {
		return 0, fmt.Errorf("%w: need %d bytes, %d left", ErrArenaFull, size, r.hdr.Capacity-r.hdr.Top)
	}

	off := r.hdr.Top
	r.hdr.Top += size
	r.account(off, size)

	return off, nil
}

func (r *Region) account(off, size uint64) {
	clear(r.buf[off : off+size])
	r.hdr.Used += size
	r.hdr.Allocs++
}

// Free returns a block to the free list for its size class. When every class
// is taken by other sizes the bytes are counted as leaked.
func (r *Region) Free(off, size uint64) error {
	if size == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	size = alignUp(size)

	if off < HeaderSize || off%Alignment != 0 || off > r.hdr.Top || size > r.hdr.Top-off {
		return fmt.Errorf("%w: %d+%d", ErrInvalidOffset, off, size)
	}

	if size > r.hdr.Used || r.hdr.Allocs == 0 {
		return fmt.Errorf("%w: free of %d bytes with %d in use", ErrCorrupt, size, r.hdr.Used)
	}

	r.hdr.Used -= size
	r.hdr.Allocs--

	c := r.class(size)
	if c == nil {
		c = r.emptyClass(size)
	}

	if c == nil {
		r.hdr.Leaked += size
		return nil
	}

	r.setWord(off, c.Head)
	c.Head = off

	return nil
}

func (r *Region) class(size uint64) *freeClass {
	for i := range r.hdr.Classes {
		if r.hdr.Classes[i].Size == size {
			return &r.hdr.Classes[i]
		}
	}

	return nil
}

func (r *Region) emptyClass(size uint64) *freeClass {
	for i := range r.hdr.Classes {
		c := &r.hdr.Classes[i]
		if c.Size == 0 {
			c.Size = size
			c.Head = 0
			return c
		}
		if c.Head == 0 {
			// Reclaim a drained class for a new size.
			c.Size = size
			return c
		}
	}

	return nil
}

// Pointer resolves an offset to an address inside the region.
// It returns nil for the null offset and for offsets outside the region.
func (r *Region) Pointer(off uint64) unsafe.Pointer {
	if off == 0 || off >= r.hdr.Capacity {
		return nil
	}

	return unsafe.Pointer(&r.buf[off])
}

// Bytes returns the size bytes starting at off, or nil when out of range.
func (r *Region) Bytes(off, size uint64) []byte {
	if off == 0 || off > r.hdr.Capacity || size > r.hdr.Capacity-off {
		return nil
	}

	return r.buf[off : off+size : off+size]
}

// Image returns the region bytes up to the high-water mark.
func (r *Region) Image() []byte {
	return r.buf[:r.hdr.Top]
}

// Lookup returns the offset and size bound to name.
func (r *Region) Lookup(name string) (off, size uint64, ok bool) {
	if s := r.slot(name); s != nil {
		return s.Off, s.Size, true
	}

	return 0, 0, false
}

// Bind records name for the object at off.
func (r *Region) Bind(name string, off, size uint64) error {
	if len(name) == 0 || len(name) > MaxNameLen {
		return fmt.Errorf("%w: %q", ErrNameTooLong, name)
	}

	if r.slot(name) != nil {
		return fmt.Errorf("%w: %q", ErrNameExists, name)
	}

	for i := range r.hdr.Names {
		s := &r.hdr.Names[i]
		if s.Off != 0 {
			continue
		}

		clear(s.Name[:])
		copy(s.Name[:], name)
		s.Off = off
		s.Size = size

		return nil
	}

	return ErrDirectoryFull
}

// Unbind removes name from the directory. It does not free the object.
func (r *Region) Unbind(name string) bool {
	s := r.slot(name)
	if s == nil {
		return false
	}

	*s = nameSlot{}

	return true
}

// Names lists the bound names in slot order.
func (r *Region) Names() []string {
	var names []string

	for i := range r.hdr.Names {
		s := &r.hdr.Names[i]
		if s.Off != 0 {
			names = append(names, slotName(s))
		}
	}

	return names
}

func (r *Region) slot(name string) *nameSlot {
	if len(name) == 0 || len(name) > MaxNameLen {
		return nil
	}

	for i := range r.hdr.Names {
		s := &r.hdr.Names[i]
		if s.Off != 0 && slotName(s) == name {
			return s
		}
	}

	return nil
}

func slotName(s *nameSlot) string {
	n := bytes.IndexByte(s.Name[:], 0)
	if n < 0 {
		n = len(s.Name)
	}

	return string(s.Name[:n])
}

// Stats returns a snapshot of region usage.
func (r *Region) Stats() Stats {
	st := Stats{
		Capacity: r.hdr.Capacity,
		Top:      r.hdr.Top,
		Used:     r.hdr.Used,
		Allocs:   r.hdr.Allocs,
		Leaked:   r.hdr.Leaked,
	}

	for i := range r.hdr.Classes {
		c := &r.hdr.Classes[i]
		for off, n := c.Head, 0; off != 0 && n < maxFreeWalk(r.hdr); n++ {
			st.Free += c.Size
			off = r.word(off)
		}
	}

	for i := range r.hdr.Names {
		if r.hdr.Names[i].Off != 0 {
			st.Named++
		}
	}

	return st
}

// maxFreeWalk bounds free-list traversal so a corrupt cycle cannot hang Stats.
func maxFreeWalk(h *header) int {
	n, err := conv.Uint64ToInt(h.Top / Alignment)
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}

func (r *Region) word(off uint64) uint64 {
	return *(*uint64)(unsafe.Pointer(&r.buf[off]))
}

func (r *Region) setWord(off, v uint64) {
	*(*uint64)(unsafe.Pointer(&r.buf[off])) = v
}

func alignUp(n uint64) uint64 {
	return (n + Alignment - 1) &^ (Alignment - 1)
}
