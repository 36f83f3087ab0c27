// Package conv provides checked integer conversions.
//
// Region headers, node counts, and file sizes cross between Go's int and
// fixed-width on-disk types. These helpers reject values that would wrap
// instead of silently truncating them.
//
// Conversions that are provably safe by construction (loop indices, values
// already bounded by a configured fan-out) use direct casts.
package conv
