package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/spatialidx/geom"
)

// FeatureCollection renders boxes as a GeoJSON feature collection. Point
// boxes become Point features, the rest become Polygon rings. It returns the
// document and each feature's byte span.
func FeatureCollection(boxes []geom.Box) ([]byte, []geom.Locator) {
	var buf bytes.Buffer

	spans := make([]geom.Locator, len(boxes))

	buf.WriteString(`{"type":"FeatureCollection","features":[`)

	for i, b := range boxes {
		if i > 0 {
			buf.WriteString(",\n  ")
		}

		start := buf.Len()
		writeFeature(&buf, i, b)
		spans[i] = geom.Locator{Offset: uint64(start), Length: uint64(buf.Len() - start)} //nolint:gosec // buffer offsets
	}

	buf.WriteString("]}\n")

	return buf.Bytes(), spans
}

func writeFeature(buf *bytes.Buffer, id int, b geom.Box) {
	fmt.Fprintf(buf, `{"type":"Feature","properties":{"id":%d},"geometry":`, id)

	if b.MinX == b.MaxX && b.MinY == b.MaxY {
		fmt.Fprintf(buf, `{"type":"Point","coordinates":[%v,%v]}}`, b.MinX, b.MinY)
		return
	}

	fmt.Fprintf(buf, `{"type":"Polygon","coordinates":[[[%v,%v],[%v,%v],[%v,%v],[%v,%v],[%v,%v]]]}}`,
		b.MinX, b.MinY, b.MaxX, b.MinY, b.MaxX, b.MaxY, b.MinX, b.MaxY, b.MinX, b.MinY)
}

// WriteFile writes data to name inside a fresh temp dir and returns the path.
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}

	return path
}

// WriteCollection renders boxes with FeatureCollection into a temp file.
func WriteCollection(t testing.TB, boxes []geom.Box) string {
	t.Helper()

	data, _ := FeatureCollection(boxes)

	return WriteFile(t, "features.geojson", data)
}
