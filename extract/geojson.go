package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/hupe1980/spatialidx/geom"
	"github.com/hupe1980/spatialidx/internal/conv"
)

// GeoJSON extracts entries from a GeoJSON FeatureCollection.
//
// Features whose geometry is null or has no coordinates are skipped; they
// have no extent to index.
type GeoJSON struct {
	// OnSkip, if set, is called with the span of every skipped feature.
	OnSkip func(geom.Locator)
}

var _ Extractor = (*GeoJSON)(nil)

// Extract implements Extractor.
func (g *GeoJSON) Extract(data []byte) ([]geom.Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var (
		entries  []geom.Entry
		sawType  bool
		typeName string
	)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, syntaxError(dec, "reading member name", err)
		}

		key, _ := tok.(string)

		switch key {
		case "type":
			sawType = true
			if err := dec.Decode(&typeName); err != nil {
				return nil, syntaxError(dec, "reading type", err)
			}
		case "features":
			entries, err = g.features(dec, data)
			if err != nil {
				return nil, err
			}
		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, syntaxError(dec, "skipping member "+key, err)
			}
		}
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, syntaxError(dec, "trailing data after document", err)
	}

	if !sawType || typeName != "FeatureCollection" {
		return nil, &SyntaxError{Offset: 0, Msg: "not a FeatureCollection (type " + typeName + ")"}
	}

	return entries, nil
}

func (g *GeoJSON) features(dec *json.Decoder, data []byte) ([]geom.Entry, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, syntaxError(dec, "reading features", err)
	}

	if tok == nil {
		return nil, nil
	}

	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, syntaxError(dec, "features is not an array", nil)
	}

	var entries []geom.Entry

	for dec.More() {
		start := skipSeparators(data, dec.InputOffset())

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, syntaxError(dec, "reading feature", err)
		}

		end := dec.InputOffset()

		loc, err := locator(start, end)
		if err != nil {
			return nil, &SyntaxError{Offset: start, Msg: "feature span", Err: err}
		}

		f, err := geojson.UnmarshalFeature(data[start:end])
		if err != nil {
			return nil, &SyntaxError{Offset: start, Msg: "invalid feature", Err: err}
		}

		box, ok := bound(f.Geometry)
		if !ok {
			if g.OnSkip != nil {
				g.OnSkip(loc)
			}
			continue
		}

		entries = append(entries, geom.Entry{Box: box, Locator: loc})
	}

	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}

	return entries, nil
}

func bound(g orb.Geometry) (geom.Box, bool) {
	if g == nil {
		return geom.Box{}, false
	}

	b := g.Bound()
	if b.IsEmpty() {
		return geom.Box{}, false
	}

	box := geom.Box{MinX: b.Min.X(), MinY: b.Min.Y(), MaxX: b.Max.X(), MaxY: b.Max.Y()}

	return box, box.Valid()
}

func locator(start, end int64) (geom.Locator, error) {
	off, err := conv.Int64ToUint64(start)
	if err != nil {
		return geom.Locator{}, err
	}

	n, err := conv.Int64ToUint64(end - start)
	if err != nil {
		return geom.Locator{}, err
	}

	return geom.Locator{Offset: off, Length: n}, nil
}

// skipSeparators advances past whitespace and the comma the decoder has not
// consumed yet, landing on the first byte of the next value.
func skipSeparators(data []byte, off int64) int64 {
	for off < int64(len(data)) {
		switch data[off] {
		case ' ', '\t', '\n', '\r', ',':
			off++
		default:
			return off
		}
	}
	return off
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return syntaxError(dec, "expected "+want.String(), err)
	}

	if d, ok := tok.(json.Delim); !ok || d != want {
		return syntaxError(dec, "expected "+want.String(), nil)
	}

	return nil
}

func syntaxError(dec *json.Decoder, msg string, err error) *SyntaxError {
	off := dec.InputOffset()

	var se *json.SyntaxError
	if errors.As(err, &se) {
		off = se.Offset
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		msg += ": unexpected end of input"
	}

	return &SyntaxError{Offset: off, Msg: msg, Err: err}
}
