package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/spatialidx/geom"
	"github.com/hupe1980/spatialidx/testutil"
)

func TestGeoJSON_Spans(t *testing.T) {
	boxes := testutil.NewRNG(1).Boxes(50, 180)
	boxes = append(boxes, geom.PointBox(3, 4))

	data, spans := testutil.FeatureCollection(boxes)

	entries, err := (&GeoJSON{}).Extract(data)
	require.NoError(t, err)
	require.Len(t, entries, len(boxes))

	for i, e := range entries {
		assert.Equal(t, spans[i], e.Locator)
		assert.True(t, e.Locator.Within(uint64(len(data))))
		assert.InDelta(t, boxes[i].MinX, e.Box.MinX, 1e-9)
		assert.InDelta(t, boxes[i].MaxY, e.Box.MaxY, 1e-9)

		raw := data[e.Locator.Offset:e.Locator.End()]
		assert.Equal(t, byte('{'), raw[0])
		assert.Equal(t, byte('}'), raw[len(raw)-1])
	}
}

func TestGeoJSON_Geometries(t *testing.T) {
	data := []byte(`{
  "type": "FeatureCollection",
  "name": "mixed",
  "features": [
    {"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[0,0],[2,5]]}},
    {"type":"Feature","properties":{},"geometry":{"type":"MultiPoint","coordinates":[[-1,-1],[1,1]]}},
    {"type":"Feature","properties":{},"geometry":{"type":"GeometryCollection","geometries":[
      {"type":"Point","coordinates":[10,10]},{"type":"Point","coordinates":[12,-3]}]}}
  ]
}`)

	entries, err := (&GeoJSON{}).Extract(data)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, geom.Box{MinX: 0, MinY: 0, MaxX: 2, MaxY: 5}, entries[0].Box)
	assert.Equal(t, geom.Box{MinX: -1, MinY: -1, MaxX: 1, MaxY: 1}, entries[1].Box)
	assert.Equal(t, geom.Box{MinX: 10, MinY: -3, MaxX: 12, MaxY: 10}, entries[2].Box)
}

func TestGeoJSON_SkipsNullGeometry(t *testing.T) {
	data := []byte(`{"features":[{"type":"Feature","properties":{},"geometry":null},` +
		`{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,2]}}],"type":"FeatureCollection"}`)

	var skipped []geom.Locator
	g := &GeoJSON{OnSkip: func(l geom.Locator) { skipped = append(skipped, l) }}

	entries, err := g.Extract(data)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Len(t, skipped, 1)

	assert.Equal(t, uint64(13), skipped[0].Offset)
	assert.Equal(t, geom.PointBox(1, 2), entries[0].Box)
}

func TestGeoJSON_Empty(t *testing.T) {
	for _, doc := range []string{
		`{"type":"FeatureCollection","features":[]}`,
		`{"type":"FeatureCollection","features":null}`,
		`{"type":"FeatureCollection"}`,
		" \n{ \"type\" : \"FeatureCollection\" , \"features\" : [ ] }\n",
	} {
		entries, err := (&GeoJSON{}).Extract([]byte(doc))
		require.NoError(t, err, doc)
		assert.Empty(t, entries)
	}
}

func TestGeoJSON_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty input":       ``,
		"not an object":     `[1,2,3]`,
		"wrong type":        `{"type":"Feature","features":[]}`,
		"missing type":      `{"features":[]}`,
		"truncated":         `{"type":"FeatureCollection","features":[{"type":"Feature"`,
		"bad feature":       `{"type":"FeatureCollection","features":[{"type":"Point","coordinates":[1,2]}]}`,
		"features scalar":   `{"type":"FeatureCollection","features":42}`,
		"trailing data":     `{"type":"FeatureCollection","features":[]} {}`,
		"invalid json":      `{"type":"FeatureCollection","features":[{,}]}`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			entries, err := (&GeoJSON{}).Extract([]byte(doc))
			assert.Nil(t, entries)

			var se *SyntaxError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.GreaterOrEqual(t, se.Offset, int64(0))
			assert.LessOrEqual(t, se.Offset, int64(len(doc)))
		})
	}
}

func TestFunc(t *testing.T) {
	var e Extractor = Func(func([]byte) ([]geom.Entry, error) {
		return []geom.Entry{{Box: geom.PointBox(0, 0), Locator: geom.Locator{Length: 1}}}, nil
	})

	entries, err := e.Extract(nil)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
