// Command spatialidx builds a bounding-box R-tree index over a GeoJSON
// feature collection.
//
// Usage:
//
//	spatialidx [flags] <geojson-file>
//
// The mode defaults to $SPATIALIDX_MODE, else "ephemeral". Nothing is written
// to stdout. The build summary and diagnostics go to stderr as structured
// logs; LOG_LEVEL (debug|info|warn|error) and
// LOG_FORMAT (text|json) select their level and encoding. Variables may also
// come from a .env file in the working directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/hupe1980/spatialidx"
	"github.com/hupe1980/spatialidx/rtree"
	"github.com/hupe1980/spatialidx/snapshot"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	_ = godotenv.Load(".env")

	os.Exit(run(context.Background(), os.Args[1:], os.Getenv, os.Stderr))
}

type config struct {
	mode          string
	fileCapacity  uint64
	bytesPerEntry uint64
	maxEntries    int
	minEntries    int
	split         string
	segment       string
	keep          bool
	snapshot      string
	compression   string
	memoryLimit   int64
}

func run(ctx context.Context, args []string, getenv func(string) string, stderr io.Writer) int {
	cfg, source, err := parseArgs(args, getenv, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	logger := newLogger(getenv, stderr)

	mode, err := spatialidx.ParseMode(cfg.mode)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	opts, err := cfg.options(logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	b := spatialidx.New(opts...)
	defer b.Close()

	if mode == spatialidx.ModeSharedBulk && !cfg.keep {
		guard, err := b.SegmentGuard(source)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitUsage
		}
		defer func() {
			if err := guard.Release(); err != nil {
				logger.WarnContext(ctx, "remove segment", "name", guard.Name(), "error", err)
			}
		}()
	}

	idx, _, err := b.BuildIndex(ctx, source, mode)
	if err != nil {
		fmt.Fprintf(stderr, "spatialidx: %v\n", err)
		if errors.Is(err, spatialidx.ErrUsage) {
			return exitUsage
		}
		return exitError
	}
	defer idx.Close()

	if cfg.snapshot != "" {
		if err := writeSnapshot(ctx, idx, cfg.snapshot, cfg.compression); err != nil {
			fmt.Fprintf(stderr, "spatialidx: %v\n", err)
			return exitError
		}
	}

	return exitOK
}

func parseArgs(args []string, getenv func(string) string, stderr io.Writer) (*config, string, error) {
	cfg := &config{}

	fs := flag.NewFlagSet("spatialidx", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: spatialidx [flags] <geojson-file>")
		fs.PrintDefaults()
	}

	defMode := getenv("SPATIALIDX_MODE")
	if defMode == "" {
		defMode = spatialidx.ModeEphemeral.String()
	}

	fs.StringVar(&cfg.mode, "mode", defMode, "build mode: ephemeral, file or shared")
	fs.Uint64Var(&cfg.fileCapacity, "file-capacity", spatialidx.DefaultFileCapacity, "minimum size of a new index file in bytes")
	fs.Uint64Var(&cfg.bytesPerEntry, "bytes-per-entry", 0, "capacity estimate per entry (0 = default for the load strategy)")
	fs.IntVar(&cfg.maxEntries, "max-entries", rtree.DefaultMaxEntries, "maximum entries per node")
	fs.IntVar(&cfg.minEntries, "min-entries", rtree.DefaultMinEntries, "minimum entries per non-root node")
	fs.StringVar(&cfg.split, "split", "linear", "node split policy: linear or quadratic")
	fs.StringVar(&cfg.segment, "segment", "", "shared segment name (default derived from the source path)")
	fs.BoolVar(&cfg.keep, "keep", false, "keep the shared segment after the build")
	fs.StringVar(&cfg.snapshot, "snapshot", "", "write a snapshot of the built region to this file")
	fs.StringVar(&cfg.compression, "compression", "zstd", "snapshot compression: zstd, lz4 or none")
	fs.Int64Var(&cfg.memoryLimit, "memory-limit", 0, "cap on region memory in bytes (0 = unlimited)")

	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return nil, "", spatialidx.ErrUsage
	}

	return cfg, fs.Arg(0), nil
}

func (c *config) options(logger *spatialidx.Logger) ([]spatialidx.Option, error) {
	var policy rtree.SplitPolicy

	switch strings.ToLower(c.split) {
	case "linear":
		policy = rtree.LinearSplit{}
	case "quadratic":
		policy = rtree.QuadraticSplit{}
	default:
		return nil, fmt.Errorf("%w: unknown split policy %q", spatialidx.ErrUsage, c.split)
	}

	if _, err := snapshot.ParseCompression(c.compression); err != nil {
		return nil, fmt.Errorf("%w: %w", spatialidx.ErrUsage, err)
	}

	tree := rtree.Config{MaxEntries: c.maxEntries, MinEntries: c.minEntries}
	if err := tree.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", spatialidx.ErrUsage, err)
	}

	opts := []spatialidx.Option{
		spatialidx.WithLogger(logger),
		spatialidx.WithTreeConfig(tree),
		spatialidx.WithSplitPolicy(policy),
		spatialidx.WithFileCapacity(c.fileCapacity),
		spatialidx.WithBytesPerEntry(c.bytesPerEntry),
		spatialidx.WithMemoryLimit(c.memoryLimit),
	}

	if c.segment != "" {
		opts = append(opts, spatialidx.WithSegmentName(c.segment))
	}

	return opts, nil
}

func writeSnapshot(ctx context.Context, idx *spatialidx.Index, path, compression string) error {
	c, err := snapshot.ParseCompression(compression)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err := idx.WriteSnapshot(ctx, f, c); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}

	return f.Close()
}

func newLogger(getenv func(string) string, w io.Writer) *spatialidx.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(getenv("LOG_LEVEL"))); err != nil {
		level = slog.LevelInfo
	}

	hopts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(getenv("LOG_FORMAT"), "json") {
		return spatialidx.NewLogger(slog.NewJSONHandler(w, hopts))
	}

	return spatialidx.NewLogger(slog.NewTextHandler(w, hopts))
}
