package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hupe1980/spatialidx/internal/arena"
	"github.com/hupe1980/spatialidx/internal/conv"
	"github.com/hupe1980/spatialidx/internal/fs"
)

// Restore writes a region image, as returned by Image, to the named file or
// shared region, replacing whatever was there. The region is sized to the
// capacity recorded in the image. The image is written beside the target and
// renamed over it, so readers see either the old region or the new one. With
// WithVerify the new region is checked before the rename.
func Restore(kind Kind, name string, image []byte, optFns ...Option) error {
	if kind == KindMemory {
		return fmt.Errorf("%w: memory regions cannot be restored", ErrInvalidName)
	}

	capacity, err := arena.Inspect(image)
	if err != nil {
		return fmt.Errorf("store: restore: %w", err)
	}

	size, err := conv.Uint64ToInt64(capacity)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCapacity, err)
	}

	opts := applyOptions(optFns)

	path, err := Path(kind, name)
	if err != nil {
		return err
	}

	if err := opts.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("store: restore %s: %w", path, err)
	}

	tmp := path + ".restore"

	f, err := opts.fs.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("store: restore %s: %w", path, err)
	}

	if err := writeImage(f, image, size); err != nil {
		_ = f.Close()
		_ = opts.fs.Remove(tmp)
		return fmt.Errorf("store: restore %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		_ = opts.fs.Remove(tmp)
		return fmt.Errorf("store: restore %s: %w", path, err)
	}

	if err := verifyImage(kind, name, tmp, opts); err != nil {
		_ = opts.fs.Remove(tmp)
		return fmt.Errorf("store: restore %s: %w", path, err)
	}

	if err := opts.fs.Rename(tmp, path); err != nil {
		_ = opts.fs.Remove(tmp)
		return fmt.Errorf("store: restore %s: %w", path, err)
	}

	opts.logger.Info("restored region", "kind", kind, "path", path, "capacity", capacity, "image", len(image))

	return nil
}

func verifyImage(kind Kind, name, tmp string, opts options) error {
	if opts.verify == nil {
		return nil
	}

	s, err := openReadOnly(kind, name, tmp, opts)
	if err != nil {
		return err
	}

	verr := opts.verify(s)
	if err := s.Close(); err != nil && verr == nil {
		return err
	}

	return verr
}

func writeImage(f fs.File, image []byte, size int64) error {
	n, err := f.Write(image)
	if err != nil {
		return err
	}

	if n != len(image) {
		return errors.New("short write")
	}

	if err := f.Truncate(size); err != nil {
		return err
	}

	return f.Sync()
}
