package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind selects where a store's region lives.
type Kind int

const (
	// KindMemory is an anonymous, process-local region.
	KindMemory Kind = iota
	// KindFile is a region backed by a regular file.
	KindFile
	// KindShared is a named shared-memory segment.
	KindShared
)

func (k Kind) String() string {
	switch k {
	case KindMemory:
		return "memory"
	case KindFile:
		return "file"
	case KindShared:
		return "shared"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// SharedDir is the directory that holds shared segments. It defaults to
// /dev/shm when present and the temp dir otherwise.
var SharedDir = defaultSharedDir()

func defaultSharedDir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// Path resolves the file system location of a named region.
// Memory stores have no path.
func Path(kind Kind, name string) (string, error) {
	if name == "" {
		return "", ErrInvalidName
	}

	switch kind {
	case KindMemory:
		return "", nil
	case KindFile:
		return name, nil
	case KindShared:
		if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
		return filepath.Join(SharedDir, name), nil
	default:
		return "", fmt.Errorf("store: unknown kind %d", int(kind))
	}
}

// Remove deletes the named region. It reports whether anything was removed;
// a missing name is not an error.
func Remove(kind Kind, name string, optFns ...Option) (bool, error) {
	if kind == KindMemory {
		return false, nil
	}

	opts := applyOptions(optFns)

	path, err := Path(kind, name)
	if err != nil {
		return false, err
	}

	if err := opts.fs.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("store: remove %s: %w", path, err)
	}

	opts.logger.Debug("removed region", "kind", kind, "path", path)

	return true, nil
}

// Exists reports whether the named region is present.
func Exists(kind Kind, name string, optFns ...Option) bool {
	if kind == KindMemory {
		return false
	}

	path, err := Path(kind, name)
	if err != nil {
		return false
	}

	_, err = applyOptions(optFns).fs.Stat(path)

	return err == nil
}
