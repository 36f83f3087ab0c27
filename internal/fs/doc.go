// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: Represents an open file with read/write/sync/truncate capabilities
//     and access to its descriptor for memory mapping
//   - [FileSystem]: Abstracts filesystem operations (open, remove, rename, stat)
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors)
//
// # Usage
//
// Production code should use fs.Default (which is [LocalFS]):
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
//
// Tests can inject [FaultyFS] to simulate failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".index", fs.Fault{FailOnTruncate: true})
//	// inject ffs into the store under test
//
// This package does not take context.Context parameters. Local filesystem
// calls are short and not interruptible at the syscall level.
package fs
