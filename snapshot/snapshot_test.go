package snapshot

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func image() []byte {
	var buf bytes.Buffer
	for i := range 4096 {
		buf.WriteByte(byte(i % 17))
		buf.Write(make([]byte, 40))
	}
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	img := image()

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer

			h, err := Write(&buf, img, c)
			require.NoError(t, err)
			assert.Equal(t, c, h.Compression)
			assert.Equal(t, uint64(len(img)), h.RawSize)
			assert.Equal(t, HeaderSize+int(h.StoredSize), buf.Len())

			if c != CompressionNone {
				assert.Less(t, h.StoredSize, h.RawSize)
			}

			got, rh, err := Read(&buf)
			require.NoError(t, err)
			assert.Equal(t, h, rh)
			assert.Equal(t, img, got)
		})
	}
}

func TestIncompressibleFallsBackToNone(t *testing.T) {
	img := []byte("x")

	var buf bytes.Buffer
	h, err := Write(&buf, img, CompressionZSTD)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, h.Compression)

	got, _, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, img, got)
}

func TestRead_Errors(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, image(), CompressionLZ4)
	require.NoError(t, err)
	good := buf.Bytes()

	_, _, err = Read(bytes.NewReader(good[:10]))
	assert.Error(t, err)

	bad := append([]byte(nil), good...)
	bad[0] = 'X'
	_, _, err = Read(bytes.NewReader(bad))
	assert.ErrorIs(t, err, ErrInvalidMagic)

	bad = append([]byte(nil), good...)
	bad[4] = 9
	_, _, err = Read(bytes.NewReader(bad))
	assert.ErrorIs(t, err, ErrUnsupported)

	bad = append([]byte(nil), good...)
	bad[24] ^= 0xFF
	_, _, err = Read(bytes.NewReader(bad))
	assert.ErrorIs(t, err, ErrChecksum)

	_, _, err = Read(bytes.NewReader(good[:len(good)-1]))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestRead_HeaderSizesAreNotTrusted(t *testing.T) {
	enc := getZstdEncoder()
	small := enc.EncodeAll(image()[:4096], nil)
	large := enc.EncodeAll(make([]byte, 1<<16), nil)
	zstdEncoderPool.Put(enc)

	tests := []struct {
		name   string
		header Header
		body   []byte
		target error
	}{
		{"stored beyond limit", Header{Compression: CompressionLZ4, RawSize: 1 << 30, StoredSize: 1 << 39}, nil, ErrCorrupt},
		{"raw beyond limit", Header{Compression: CompressionZSTD, RawSize: 1 << 41, StoredSize: 8}, nil, ErrCorrupt},
		{"uncompressed sizes differ", Header{Compression: CompressionNone, RawSize: 100, StoredSize: 10}, make([]byte, 10), ErrCorrupt},
		{"lz4 expansion too large", Header{Compression: CompressionLZ4, RawSize: 1 << 30, StoredSize: 16}, make([]byte, 16), ErrCorrupt},
		{"body shorter than stored size", Header{Compression: CompressionNone, RawSize: 1 << 33, StoredSize: 1 << 33}, make([]byte, 10), ErrCorrupt},
		{"zstd decodes short of raw size", Header{Compression: CompressionZSTD, RawSize: 1 << 30, StoredSize: uint64(len(small))}, small, ErrCorrupt},
		{"zstd decodes past raw size", Header{Compression: CompressionZSTD, RawSize: 1024, StoredSize: uint64(len(large))}, large, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.header.Version = Version

			var buf bytes.Buffer
			buf.Write(tt.header.marshal())
			buf.Write(tt.body)

			_, _, err := Read(&buf)
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestParseCompression(t *testing.T) {
	for s, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "LZ4": CompressionLZ4, "zstd": CompressionZSTD} {
		got, err := ParseCompression(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseCompression("gzip")
	assert.ErrorIs(t, err, ErrUnsupported)
}
