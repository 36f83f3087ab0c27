// Package geom defines the value types indexed by the spatial tree:
// axis-aligned bounding boxes, locators into the source file, and the
// (box, locator) entries that pair them.
//
// All types are plain fixed-size structs without pointers so they can be
// stored verbatim inside a relocatable backing region.
package geom
