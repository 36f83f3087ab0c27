// Package store provides the backing store for a spatial index: one
// relocatable region that lives in anonymous memory, in a regular file, or in
// a named shared-memory segment.
//
// Objects inside a store are addressed by offsets from the region base and
// can be published under a short name with FindOrConstruct, so a later run or
// another process can find them again after mapping the same region at a
// different address.
//
// # Kinds
//
//   - KindMemory: anonymous private mapping, gone when the store is closed.
//   - KindFile: a file at the given path; persists across runs.
//   - KindShared: a named segment in the shared-memory directory (/dev/shm on
//     Linux, the temp dir elsewhere); persists until removed.
//
// A store never grows. Allocation beyond the capacity fixed at creation fails
// with arena.ErrArenaFull.
package store
