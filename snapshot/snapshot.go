// Package snapshot exports a backing region image to a compact, checksummed
// stream and reads it back.
//
// Format: a 32-byte little-endian header followed by the (possibly
// compressed) image.
//
//	[0:4]   magic "SPXS"
//	[4:6]   version
//	[6]     compression
//	[7]     reserved
//	[8:16]  raw image size
//	[16:24] stored body size
//	[24:28] CRC32 (IEEE) of the raw image
//	[28:32] reserved
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the body codec.
type Compression uint8

const (
	// CompressionNone stores the image as is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses zstd (better ratio).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// ParseCompression accepts "none", "lz4" and "zstd".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupported, s)
	}
}

const (
	// HeaderSize is the fixed header length.
	HeaderSize = 32
	// Version is the current format version.
	Version = 1
	// MaxImageSize bounds the raw and stored sizes a reader accepts.
	MaxImageSize = 1 << 34
	// maxLZ4Ratio is the largest expansion an LZ4 block can encode.
	maxLZ4Ratio = 255
)

var magic = [4]byte{'S', 'P', 'X', 'S'}

var (
	// ErrInvalidMagic is returned for streams that are not snapshots.
	ErrInvalidMagic = errors.New("snapshot: invalid magic")
	// ErrUnsupported is returned for unknown versions or codecs.
	ErrUnsupported = errors.New("snapshot: unsupported")
	// ErrChecksum is returned when the decoded image does not match its CRC.
	ErrChecksum = errors.New("snapshot: checksum mismatch")
	// ErrCorrupt is returned for inconsistent sizes.
	ErrCorrupt = errors.New("snapshot: corrupt")
)

// Header describes a snapshot.
type Header struct {
	Version     uint16
	Compression Compression
	RawSize     uint64
	StoredSize  uint64
	CRC         uint32
}

func (h Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint16(buf[4:], h.Version)
	buf[6] = byte(h.Compression)
	binary.LittleEndian.PutUint64(buf[8:], h.RawSize)
	binary.LittleEndian.PutUint64(buf[16:], h.StoredSize)
	binary.LittleEndian.PutUint32(buf[24:], h.CRC)
	return buf
}

func parseHeader(buf []byte) (Header, error) {
	if [4]byte(buf[0:4]) != magic {
		return Header{}, ErrInvalidMagic
	}

	h := Header{
		Version:     binary.LittleEndian.Uint16(buf[4:]),
		Compression: Compression(buf[6]),
		RawSize:     binary.LittleEndian.Uint64(buf[8:]),
		StoredSize:  binary.LittleEndian.Uint64(buf[16:]),
		CRC:         binary.LittleEndian.Uint32(buf[24:]),
	}

	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: version %d", ErrUnsupported, h.Version)
	}

	if h.Compression > CompressionZSTD {
		return Header{}, fmt.Errorf("%w: compression %d", ErrUnsupported, h.Compression)
	}

	if h.RawSize > MaxImageSize || h.StoredSize > MaxImageSize {
		return Header{}, fmt.Errorf("%w: raw %d, stored %d", ErrCorrupt, h.RawSize, h.StoredSize)
	}

	switch h.Compression {
	case CompressionNone:
		if h.RawSize != h.StoredSize {
			return Header{}, fmt.Errorf("%w: uncompressed body %d bytes, raw %d", ErrCorrupt, h.StoredSize, h.RawSize)
		}
	case CompressionLZ4:
		if h.StoredSize == 0 || h.RawSize > h.StoredSize*maxLZ4Ratio {
			return Header{}, fmt.Errorf("%w: lz4 body %d bytes cannot expand to %d", ErrCorrupt, h.StoredSize, h.RawSize)
		}
	case CompressionZSTD:
		if h.StoredSize == 0 || h.RawSize == 0 {
			return Header{}, fmt.Errorf("%w: zstd body %d bytes, raw %d", ErrCorrupt, h.StoredSize, h.RawSize)
		}
	}

	return h, nil
}

var zstdEncoderPool sync.Pool

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

// Write encodes image to w. When the codec does not shrink the image the
// body is stored uncompressed and the header says so.
func Write(w io.Writer, image []byte, c Compression) (Header, error) {
	body, c, err := compress(image, c)
	if err != nil {
		return Header{}, err
	}

	h := Header{
		Version:     Version,
		Compression: c,
		RawSize:     uint64(len(image)),
		StoredSize:  uint64(len(body)),
		CRC:         crc32.ChecksumIEEE(image),
	}

	if _, err := w.Write(h.marshal()); err != nil {
		return Header{}, fmt.Errorf("snapshot: write header: %w", err)
	}

	if _, err := w.Write(body); err != nil {
		return Header{}, fmt.Errorf("snapshot: write body: %w", err)
	}

	return h, nil
}

func compress(image []byte, c Compression) ([]byte, Compression, error) {
	if len(image) == 0 {
		return image, CompressionNone, nil
	}

	switch c {
	case CompressionNone:
		return image, CompressionNone, nil
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(image)))

		n, err := lz4.CompressBlock(image, buf, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("snapshot: lz4: %w", err)
		}

		if n == 0 || n >= len(image) {
			return image, CompressionNone, nil // Incompressible
		}

		return buf[:n], CompressionLZ4, nil
	case CompressionZSTD:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)

		out := enc.EncodeAll(image, nil)
		if len(out) >= len(image) {
			return image, CompressionNone, nil
		}

		return out, CompressionZSTD, nil
	default:
		return nil, 0, fmt.Errorf("%w: compression %d", ErrUnsupported, c)
	}
}

// Read decodes a snapshot from r and returns the raw image. Memory grows with
// the bytes actually read and decoded, never with the sizes a header claims.
func Read(r io.Reader) ([]byte, Header, error) {
	hbuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hbuf); err != nil {
		return nil, Header{}, fmt.Errorf("snapshot: read header: %w", err)
	}

	h, err := parseHeader(hbuf)
	if err != nil {
		return nil, Header{}, err
	}

	var body bytes.Buffer
	if n, err := io.CopyN(&body, r, int64(h.StoredSize)); err != nil { //nolint:gosec // bounded by MaxImageSize
		if errors.Is(err, io.EOF) {
			return nil, Header{}, fmt.Errorf("%w: body %d bytes, want %d", ErrCorrupt, n, h.StoredSize)
		}
		return nil, Header{}, fmt.Errorf("snapshot: read body: %w", err)
	}

	image, err := decompress(body.Bytes(), h)
	if err != nil {
		return nil, Header{}, err
	}

	if crc32.ChecksumIEEE(image) != h.CRC {
		return nil, Header{}, ErrChecksum
	}

	return image, h, nil
}

func decompress(body []byte, h Header) ([]byte, error) {
	switch h.Compression {
	case CompressionNone:
		if uint64(len(body)) != h.RawSize {
			return nil, fmt.Errorf("%w: body %d bytes, want %d", ErrCorrupt, len(body), h.RawSize)
		}
		return body, nil
	case CompressionLZ4:
		out := make([]byte, h.RawSize)

		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("snapshot: lz4: %w", err)
		}

		if uint64(n) != h.RawSize {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCorrupt, n, h.RawSize)
		}

		return out, nil
	case CompressionZSTD:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(h.RawSize))
		if err != nil {
			return nil, fmt.Errorf("snapshot: zstd: %w", err)
		}
		defer dec.Close()

		out, err := dec.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("snapshot: zstd: %w", err)
		}

		if uint64(len(out)) != h.RawSize {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCorrupt, len(out), h.RawSize)
		}

		return out, nil
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupported, h.Compression)
	}
}
