// Package mmap provides shared file mappings and anonymous mappings used as
// backing memory for index regions.
//
// # Overview
//
// A backing region is one contiguous byte range. File-backed and named
// shared-memory regions are mapped MAP_SHARED so writes reach the file and
// other processes see them; anonymous regions are process-private.
//
// # Usage
//
//	f, _ := os.OpenFile("data.geojson.index", os.O_RDWR, 0)
//	m, err := mmap.Map(f, size, true)
//	if err != nil { ... }
//	defer m.Close()
//
//	buf := m.Bytes()
//	// mutate buf ...
//	_ = m.Sync()
//
// # Platform Support
//
// Unix platforms use mmap(2), msync(2), and madvise(2) through
// golang.org/x/sys/unix. Other platforms return ErrUnsupported.
//
// # Thread Safety
//
// Close is idempotent and guarded by an atomic flag. Callers must ensure no
// goroutine touches Bytes() after Close returns.
package mmap
