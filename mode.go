package spatialidx

import (
	"fmt"
	"strings"

	"github.com/hupe1980/spatialidx/store"
)

// Mode selects the backing region and load strategy of a build.
type Mode int

const (
	// ModeEphemeral builds into anonymous memory that is discarded when the
	// build finishes. Bulk loaded.
	ModeEphemeral Mode = iota

	// ModeFileIncremental builds into "<source>.index", opening it if it
	// exists. Entries are inserted one at a time.
	ModeFileIncremental

	// ModeSharedBulk builds into a named shared-memory segment that must not
	// already exist. Bulk loaded. The segment outlives the build.
	ModeSharedBulk
)

// String returns the CLI name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeEphemeral:
		return "ephemeral"
	case ModeFileIncremental:
		return "file"
	case ModeSharedBulk:
		return "shared"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses a mode name as accepted by the CLI.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ephemeral", "memory":
		return ModeEphemeral, nil
	case "file", "file-incremental":
		return ModeFileIncremental, nil
	case "shared", "shared-bulk":
		return ModeSharedBulk, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrUsage, s)
	}
}

func (m Mode) valid() bool {
	return m >= ModeEphemeral && m <= ModeSharedBulk
}

func (m Mode) kind() store.Kind {
	switch m {
	case ModeFileIncremental:
		return store.KindFile
	case ModeSharedBulk:
		return store.KindShared
	default:
		return store.KindMemory
	}
}

func (m Mode) defaultStrategy() LoadStrategy {
	if m == ModeFileIncremental {
		return LoadIncremental
	}
	return LoadBulk
}

// LoadStrategy selects how entries are put into the tree.
type LoadStrategy int

const (
	// LoadAuto uses the mode's default: incremental for file builds, bulk
	// otherwise.
	LoadAuto LoadStrategy = iota

	// LoadBulk packs all entries bottom-up in one pass.
	LoadBulk

	// LoadIncremental inserts entries one at a time in source order.
	LoadIncremental
)

func (s LoadStrategy) String() string {
	switch s {
	case LoadAuto:
		return "auto"
	case LoadBulk:
		return "bulk"
	case LoadIncremental:
		return "incremental"
	default:
		return fmt.Sprintf("LoadStrategy(%d)", int(s))
	}
}
