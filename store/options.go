package store

import (
	"log/slog"

	"github.com/hupe1980/spatialidx/internal/fs"
	"github.com/hupe1980/spatialidx/internal/mmap"
)

type options struct {
	fs     fs.FileSystem
	logger *slog.Logger
	advice mmap.AccessPattern
	verify func(*Store) error
}

// Option configures a store.
type Option func(*options)

// WithFileSystem sets the file system used for file and shared regions.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fs = fsys
		}
	}
}

// WithLogger sets the logger for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithAdvice passes an access-pattern hint to the kernel after mapping.
func WithAdvice(p mmap.AccessPattern) Option {
	return func(o *options) {
		o.advice = p
	}
}

// WithVerify makes Restore check the written image before it replaces the
// target. verify sees a read-only store over the new region; an error aborts
// the restore.
func WithVerify(verify func(*Store) error) Option {
	return func(o *options) {
		o.verify = verify
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		fs:     fs.Default,
		logger: slog.New(slog.DiscardHandler),
		advice: mmap.AccessDefault,
	}

	for _, fn := range optFns {
		fn(&o)
	}

	return o
}
