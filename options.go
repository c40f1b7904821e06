package docfind

import (
	"log/slog"
	"time"
)

type options struct {
	logger          *Logger
	metrics         MetricsCollector
	pageSize        int
	pollInterval    time.Duration
	maxPollInterval time.Duration
	waitTimeout     time.Duration
}

// Option configures a Client.
type Option func(*options)

// WithLogger configures structured logging for client operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
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

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithPageSize sets the default number of results fetched per request for
// open-ended iteration. Default: DefaultPageSize. A Searchable can override
// it with PageSize.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithPollInterval sets the initial delay between checkpoint status polls
// during Wait. Default: 500ms.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithMaxPollInterval caps the poll interval. When it exceeds the initial
// interval, polling backs off exponentially toward the cap; when equal (the
// default), the interval stays fixed.
func WithMaxPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxPollInterval = d
		}
	}
}

// WithWaitTimeout bounds every checkpoint Wait. Zero (the default) waits
// until the caller's context is done.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.waitTimeout = d
		}
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:       NoopLogger(),
		metrics:      NoopMetricsCollector{},
		pageSize:     DefaultPageSize,
		pollInterval: 500 * time.Millisecond,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.maxPollInterval < o.pollInterval {
		o.maxPollInterval = o.pollInterval
	}
	return o
}
