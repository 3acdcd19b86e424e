package queue

import (
	"context"

	"herdsync/internal/logging"
)

// DrainReport summarises one drain pass.
type DrainReport struct {
	Attempted int `json:"attempted"`
	Failed    int `json:"failed"`
}

// Delivered is the number of items the remote accepted.
func (r DrainReport) Delivered() int { return r.Attempted - r.Failed }

// Pending is the queue of records awaiting delivery to the remote store.
type Pending[T any] struct {
	list   *List[T]
	logger logging.Logger
}

// PendingOption configures a Pending queue.
type PendingOption func(*pendingConfig)

type pendingConfig struct {
	logger logging.Logger
}

// WithLogger routes drain failure logs to logger.
func WithLogger(logger logging.Logger) PendingOption {
	return func(c *pendingConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewPending wraps list as a pending queue.
func NewPending[T any](list *List[T], opts ...PendingOption) *Pending[T] {
	cfg := pendingConfig{logger: logging.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pending[T]{list: list, logger: cfg.logger}
}

// Key returns the storage key backing the queue.
func (p *Pending[T]) Key() string { return p.list.Key() }

// Enqueue appends item to the queue.
func (p *Pending[T]) Enqueue(ctx context.Context, item T) error {
	return p.list.Append(ctx, item)
}

// Items returns the queued items in insertion order.
func (p *Pending[T]) Items(ctx context.Context) ([]T, error) {
	return p.list.Load(ctx)
}

// Len returns the number of queued items.
func (p *Pending[T]) Len(ctx context.Context) (int, error) {
	return p.list.Len(ctx)
}

// Clear drops every queued item without pushing it.
func (p *Pending[T]) Clear(ctx context.Context) error {
	return p.list.Clear(ctx)
}

// Drain pushes every item queued when the pass starts, in order, and then
// removes exactly those items. Items enqueued while the pass is pushing stay
// queued for the next pass.
//
// Delivery is at most once: a failed push is logged and the item is removed
// with the rest of the pass. An empty queue performs no writes.
func (p *Pending[T]) Drain(ctx context.Context, push func(context.Context, T) error) (DrainReport, error) {
	items, err := p.list.Load(ctx)
	if err != nil {
		return DrainReport{}, err
	}
	if len(items) == 0 {
		return DrainReport{}, nil
	}
	report := DrainReport{Attempted: len(items)}
	for i, item := range items {
		if err := push(ctx, item); err != nil {
			report.Failed++
			p.logger.Error("drain push failed", "queue", p.list.Key(), "index", i, "error", err)
		}
	}
	if err := p.list.TrimFront(ctx, len(items)); err != nil {
		return report, err
	}
	p.logger.Info("queue drained", "queue", p.list.Key(), "attempted", report.Attempted, "failed", report.Failed)
	return report, nil
}
