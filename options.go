package sparsevec

import (
	"log/slog"

	"github.com/hupe1980/sparsevec/index/inverted"
)

// DefaultFullScanThreshold is the vector count below which search always
// uses the full-scan path. Posting list overhead is not worth paying for
// small segments.
const DefaultFullScanThreshold = 5000

type options struct {
	indexType          inverted.IndexType
	fullScanThreshold  int
	path               string
	discardStale       bool
	maxBuildWorkers    int64
	memoryLimitBytes   int64
	ioLimitBytesPerSec int64
	metricsCollector   MetricsCollector
	logger             *Logger
}

// Option configures Open behavior.
type Option func(*options)

// WithIndexType selects the inverted index variant built by the next
// BuildIndexWithProgress call: IndexTypeRAM (mutable), IndexTypeCompact
// (immutable in-memory), or IndexTypeMmap (file-backed). Default is
// IndexTypeRAM.
//
// Compact and Mmap require WithPath when the index should survive a
// restart; Mmap always requires a path.
func WithIndexType(t inverted.IndexType) Option {
	return func(o *options) {
		o.indexType = t
	}
}

// WithFullScanThreshold sets the vector count below which search uses a
// full linear scan regardless of index state.
func WithFullScanThreshold(n int) Option {
	return func(o *options) {
		o.fullScanThreshold = n
	}
}

// WithPath sets the directory holding the persisted index state
// (config.json plus the sealed posting data). Open loads compatible state
// from this directory; builds of persisted index types write to it.
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// WithDiscardStale makes Open fall back to an unbuilt index instead of
// failing with ErrInconsistentState when persisted state disagrees with
// storage. The stale files are left on disk until the next build
// overwrites them.
func WithDiscardStale() Option {
	return func(o *options) {
		o.discardStale = true
	}
}

// WithMaxBuildWorkers caps the number of concurrent build workers.
// Defaults to 1 (single-threaded build).
func WithMaxBuildWorkers(n int) Option {
	return func(o *options) {
		o.maxBuildWorkers = int64(n)
	}
}

// WithMemoryLimit sets a hard budget for build-time memory reservations.
// Builds fail fast with resource.ErrMemoryLimitExceeded instead of
// overcommitting. 0 means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimitBytes = bytes
	}
}

// WithIOLimit rate-limits segment flush and offload IO to the given
// throughput. 0 means unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimitBytesPerSec = bytesPerSec
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		indexType:         inverted.IndexTypeRAM,
		fullScanThreshold: DefaultFullScanThreshold,
		maxBuildWorkers:   1,
		metricsCollector:  NoopMetricsCollector{},
		logger:            NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
