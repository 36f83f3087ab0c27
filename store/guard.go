package store

import (
	"sync"
)

// RemovalGuard deletes a named region when it is created and again when it is
// released, so a build starts from a clean name and leaves nothing behind.
//
// If the process dies between the two removals the segment stays in place
// until the next guard or an explicit Remove.
type RemovalGuard struct {
	kind Kind
	name string
	opts []Option
	once sync.Once
	err  error
}

// NewRemovalGuard removes any existing region named name and returns a guard
// that removes it again on Release.
func NewRemovalGuard(kind Kind, name string, optFns ...Option) *RemovalGuard {
	_, _ = Remove(kind, name, optFns...)

	return &RemovalGuard{kind: kind, name: name, opts: optFns}
}

// Name returns the guarded name.
func (g *RemovalGuard) Name() string { return g.name }

// Release removes the region. Only the first call has an effect.
func (g *RemovalGuard) Release() error {
	g.once.Do(func() {
		_, g.err = Remove(g.kind, g.name, g.opts...)
	})

	return g.err
}
