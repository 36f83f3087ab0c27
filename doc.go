// Package spatialidx builds bounding-box R-tree indexes over GeoJSON feature
// collections.
//
// Each feature of a FeatureCollection becomes one entry: the bounding box of
// its geometry plus the byte span of the feature in the source file. The
// tree lives in a relocatable region addressed by offsets, so a completed
// index can be mapped by another process at any address.
//
// # Quick Start
//
//	b := spatialidx.New()
//	defer b.Close()
//
//	res, err := b.Build(ctx, "roads.geojson", spatialidx.ModeFileIncremental)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(res.EntryCount, res.Bounds)
//
//	idx, _ := spatialidx.OpenIndex(spatialidx.IndexPath("roads.geojson"))
//	defer idx.Close()
//
// # Modes
//
// Three modes choose where the region lives:
//
//	ModeEphemeral        anonymous memory, discarded after the build, bulk load
//	ModeFileIncremental  "<source>.index", reopened if present, one insert per entry
//	ModeSharedBulk       named shared-memory segment, create-only, bulk load
//
// A shared build fails with ErrNameCollision when its segment already
// exists. Use Builder.SegmentGuard to remove a stale segment before a build
// and again afterwards.
//
// # Errors
//
// Builds fail with one of:
//
//   - ErrUsage for malformed invocations
//   - *MappingError when the source cannot be mapped
//   - *ParseError when the source is not a valid FeatureCollection
//   - *AllocationError when the region cannot hold the tree
//
// # Snapshots
//
// Index.WriteSnapshot exports a compressed copy of a region and
// RestoreSnapshot turns one back into a file-backed index.
package spatialidx
