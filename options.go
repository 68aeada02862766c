package flashvfs

import (
	"log/slog"
	"time"

	"github.com/hupe1980/flashvfs/engine"
	"github.com/hupe1980/flashvfs/engine/simfs"
	"github.com/hupe1980/flashvfs/flash"
)

// DefaultMaxVolumes is the number of registry slots when WithMaxVolumes is
// not given.
const DefaultMaxVolumes = 3

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	maxVolumes       int
	partitions       map[string]flash.Partition
	engine           engine.Factory
	memoryLimit      int64
	ioLimit          int64
	maxErase         int64
	humanErrors      bool
	clock            func() time.Time
}

// Option configures a Registry.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := flashvfs.NewJSONLogger(slog.LevelInfo)
//	reg := flashvfs.New(flashvfs.WithLogger(logger))
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

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithMaxVolumes sets the number of volumes the registry can hold.
func WithMaxVolumes(n int) Option {
	return func(o *options) {
		o.maxVolumes = n
	}
}

// WithPartition declares the flash range backing the volume with the same
// label. Later declarations for a label replace earlier ones.
func WithPartition(p flash.Partition) Option {
	return func(o *options) {
		if o.partitions == nil {
			o.partitions = make(map[string]flash.Partition)
		}
		o.partitions[p.Label] = p
	}
}

// WithEngine selects the filesystem engine. The default is simfs.
func WithEngine(f engine.Factory) Option {
	return func(o *options) {
		o.engine = f
	}
}

// WithMemoryLimit caps the memory used by descriptor tables and block caches
// of all volumes. Zero means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithIOLimit caps flash throughput in bytes per second. Zero means unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithMaxConcurrentErase bounds how many whole-partition erases run at once.
func WithMaxConcurrentErase(n int) Option {
	return func(o *options) {
		o.maxErase = int64(n)
	}
}

// WithHumanReadableErrors adds the symbolic engine error name, such as
// ERR_NOENT, to every logged failure.
func WithHumanReadableErrors(enabled bool) Option {
	return func(o *options) {
		o.humanErrors = enabled
	}
}

// WithClock replaces time.Now for modification times.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		maxVolumes:       DefaultMaxVolumes,
		engine:           simfs.Factory(),
		maxErase:         1,
		clock:            time.Now,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}

	if o.logger == nil {
		o.logger = NoopLogger()
	}
	o.logger = o.logger.withErrnoNames(o.humanErrors)
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.engine == nil {
		o.engine = simfs.Factory()
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	return o
}
