// Package rtree implements a bounding-box R-tree that lives entirely inside a
// relocatable region.
//
// Nodes are fixed-size records addressed by offsets from the region base, so
// a tree built in one process can be reopened from a file or shared segment
// by another process mapped at a different address.
//
// # Construction
//
// Trees are built either one entry at a time with Insert, which descends by
// least area enlargement and splits overflowing nodes with a pluggable
// SplitPolicy, or from a complete entry set with BulkLoad, which packs nodes
// bottom-up with sort-tile-recursive ordering.
//
// # Invariants
//
// Every non-root node holds between MinEntries and MaxEntries slots, all
// leaves sit on the same level, and every internal slot's box is exactly the
// union of its child's slots. Validate checks all of them.
package rtree
