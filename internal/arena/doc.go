// Package arena manages allocations inside one contiguous, relocatable byte
// region.
//
// The region starts with a fixed header that records a bump pointer,
// exact-size free lists, and a small directory of named objects. Every
// reference is a uint64 offset from the region base, so a region written by
// one process can be mapped by another at a different address. Offset 0 is
// the header itself and doubles as the null reference.
//
// # Concurrency Model
//
// A Region has a single writer. Readers of a region that is no longer being
// mutated may use Pointer, Bytes and Lookup concurrently.
package arena
