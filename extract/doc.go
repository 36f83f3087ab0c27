// Package extract turns the raw bytes of a feature collection into index
// entries: one bounding box plus the exact byte span of each feature.
//
// The GeoJSON extractor streams the top-level document with encoding/json
// tokens so every feature's span can be recovered from the decoder's input
// offset, and computes bounds with github.com/paulmach/orb. Extraction is all
// or nothing: any malformed feature fails the whole call.
package extract
