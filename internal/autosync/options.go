// Package autosync routes submitted records to the remote store or the
// pending queue and drains the queue when connectivity returns.
package autosync

import (
	"context"
	"time"

	"herdsync/internal/logging"
)

// MetricsRecorder observes operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// Option configures a Drainer, Router or Listener.
type Option func(*options)

type options struct {
	logger  logging.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

func newOptions(opts []Option) options {
	o := options{logger: logging.Nop(), metrics: noopMetrics{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder sets the recorder for submit and drain timings.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(o *options) {
		if rec != nil {
			o.metrics = rec
		}
	}
}

// WithClock overrides the time source used for timings.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
