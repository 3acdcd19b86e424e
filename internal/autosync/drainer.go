package autosync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"herdsync/internal/queue"
	"herdsync/pkg/domain"
)

// State of a Drainer.
type State int32

const (
	Idle State = iota
	Draining
)

func (s State) String() string {
	if s == Draining {
		return "draining"
	}
	return "idle"
}

// Drainer owns one record type's pending queue and delivers it to that
// type's collection. At most one drain pass runs at a time; calls that
// arrive during a pass are dropped, not queued.
type Drainer[T domain.Record] struct {
	pending    *queue.Pending[T]
	remote     domain.RemoteStore
	collection domain.Collection
	state      atomic.Int32
	opts       options
}

// NewDrainer binds pending to remote. The target collection is the record
// type's own.
func NewDrainer[T domain.Record](pending *queue.Pending[T], remote domain.RemoteStore, opts ...Option) *Drainer[T] {
	var zero T
	return &Drainer[T]{
		pending:    pending,
		remote:     remote,
		collection: zero.Collection(),
		opts:       newOptions(opts),
	}
}

// Collection returns the remote collection this drainer delivers to.
func (d *Drainer[T]) Collection() domain.Collection { return d.collection }

// State reports whether a pass is running.
func (d *Drainer[T]) State() State { return State(d.state.Load()) }

// Pending returns the queue drained by d.
func (d *Drainer[T]) Pending() *queue.Pending[T] { return d.pending }

// TryDrain runs one drain pass unless one is already running, in which case
// it returns ran=false without touching the queue. A started pass runs to
// completion: cancelling ctx does not abort the remaining pushes.
func (d *Drainer[T]) TryDrain(ctx context.Context) (report queue.DrainReport, ran bool, err error) {
	if !d.state.CompareAndSwap(int32(Idle), int32(Draining)) {
		d.opts.logger.Debug("drain already running", "collection", d.collection)
		return queue.DrainReport{}, false, nil
	}
	defer d.state.Store(int32(Idle))
	ctx = context.WithoutCancel(ctx)

	start := d.opts.now()
	report, err = d.pending.Drain(ctx, func(ctx context.Context, rec T) error {
		_, pushErr := d.push(ctx, rec)
		return pushErr
	})
	d.opts.metrics.Observe(ctx, "drain_"+string(d.collection), err == nil && report.Failed == 0, d.opts.now().Sub(start))
	if err != nil {
		return report, true, fmt.Errorf("%w: %w", ErrLocalStore, err)
	}
	return report, true, nil
}

func (d *Drainer[T]) push(ctx context.Context, rec T) (string, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode %s record: %w", d.collection, err)
	}
	return d.remote.Push(ctx, d.collection, payload)
}
