package spatialidx

import (
	"github.com/hupe1980/spatialidx/extract"
	"github.com/hupe1980/spatialidx/internal/fs"
	"github.com/hupe1980/spatialidx/internal/resource"
	"github.com/hupe1980/spatialidx/rtree"
)

const (
	// DefaultFileCapacity is the minimum size of a file-backed region.
	DefaultFileCapacity = 64 << 20

	// DefaultOverhead is added to every capacity estimate for the region
	// header, tree metadata and the top levels of the tree.
	DefaultOverhead = 64 << 10

	// DefaultBulkBytesPerEntry is the per-entry estimate for bulk loads.
	DefaultBulkBytesPerEntry = 64
)

// options holds configuration for builders and index handles.
type options struct {
	logger        *Logger
	metrics       MetricsCollector
	tree          rtree.Config
	split         rtree.SplitPolicy
	fileCapacity  uint64
	bytesPerEntry uint64
	overhead      uint64
	segmentName   string
	strategy      LoadStrategy
	extractor     extract.Extractor
	fs            fs.FileSystem
	resources     *resource.Controller
}

// Option configures a Builder or an Index.
type Option func(*options)

// WithLogger sets the structured logger.
//
// Example:
//
//	logger := spatialidx.NewJSONLogger(slog.LevelDebug)
//	b := spatialidx.New(spatialidx.WithLogger(logger))
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsCollector sets the metrics collector.
//
// Example:
//
//	mc := &spatialidx.BasicMetricsCollector{}
//	b := spatialidx.New(spatialidx.WithMetricsCollector(mc))
//	...
//	fmt.Println(mc.GetStats().BuildCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc != nil {
			o.metrics = mc
		}
	}
}

// WithTreeConfig sets the node fan-out bounds. Defaults to 16/4.
func WithTreeConfig(cfg rtree.Config) Option {
	return func(o *options) {
		o.tree = cfg
	}
}

// WithSplitPolicy sets the node split policy for incremental loads.
// Defaults to rtree.LinearSplit.
func WithSplitPolicy(p rtree.SplitPolicy) Option {
	return func(o *options) {
		if p != nil {
			o.split = p
		}
	}
}

// WithFileCapacity sets the minimum size of a newly created file region.
// An existing index file keeps its recorded size.
func WithFileCapacity(bytes uint64) Option {
	return func(o *options) {
		o.fileCapacity = bytes
	}
}

// WithBytesPerEntry overrides the per-entry capacity estimate.
// Zero selects the default for the load strategy.
func WithBytesPerEntry(bytes uint64) Option {
	return func(o *options) {
		o.bytesPerEntry = bytes
	}
}

// WithOverhead sets the fixed part of the capacity estimate.
func WithOverhead(bytes uint64) Option {
	return func(o *options) {
		o.overhead = bytes
	}
}

// WithSegmentName overrides the derived shared-segment name.
func WithSegmentName(name string) Option {
	return func(o *options) {
		o.segmentName = name
	}
}

// WithLoadStrategy overrides the mode's default load strategy.
func WithLoadStrategy(s LoadStrategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

// WithExtractor replaces the GeoJSON extractor.
func WithExtractor(e extract.Extractor) Option {
	return func(o *options) {
		if e != nil {
			o.extractor = e
		}
	}
}

// WithMemoryLimit caps the combined capacity of regions held open by the
// builder. Zero disables the cap.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.resources = resource.NewController(resource.Config{
			MemoryLimitBytes:   bytes,
			IOLimitBytesPerSec: o.resources.IOLimit(),
		})
	}
}

// WithIOLimit caps snapshot export and import throughput in bytes per second.
// Zero disables the cap.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.resources = resource.NewController(resource.Config{
			MemoryLimitBytes:   o.resources.MemoryLimit(),
			IOLimitBytesPerSec: bytesPerSec,
		})
	}
}

// withFileSystem swaps the file system, used for fault injection in tests.
func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fs = fsys
		}
	}
}

// applyOptions applies functional options and returns the configured options.
func applyOptions(optFns []Option) options {
	o := options{
		logger:       NoopLogger(),
		metrics:      NoopMetricsCollector{},
		tree:         rtree.DefaultConfig(),
		split:        rtree.LinearSplit{},
		fileCapacity: DefaultFileCapacity,
		overhead:     DefaultOverhead,
		strategy:     LoadAuto,
		fs:           fs.Default,
	}

	for _, fn := range optFns {
		fn(&o)
	}

	if o.extractor == nil {
		o.extractor = &extract.GeoJSON{}
	}

	return o
}
