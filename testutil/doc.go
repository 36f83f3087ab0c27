// Package testutil provides testing utilities for spatialidx.
//
// This package is intended for use in tests and benchmarks only.
// It provides deterministic generators for boxes, index entries and GeoJSON
// feature collections.
//
// # Random Entries
//
//	rng := testutil.NewRNG(seed)
//	entries := rng.Entries(1000, 100) // boxes inside [0,100)², contiguous locators
//
// # GeoJSON Fixtures
//
//	data, spans := testutil.FeatureCollection(rng.Points(10, 100))
package testutil
