package autosync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"herdsync/internal/queue"
	"herdsync/pkg/domain"
)

// ErrLocalStore wraps failures of the device-local store. Callers show a
// generic failure for it.
var ErrLocalStore = errors.New("local store failure")

// Delivery says where a submitted record went.
type Delivery string

const (
	DeliveredRemote Delivery = "remote"
	DeliveredQueued Delivery = "queued"
)

// Outcome of a submission. ID is set when the remote accepted the record.
type Outcome struct {
	Delivered Delivery           `json:"delivered"`
	ID        string             `json:"id,omitempty"`
	Backlog   *queue.DrainReport `json:"backlog,omitempty"`
}

// Router decides per submission whether to push directly or queue.
type Router[T domain.Record] struct {
	mirror  *queue.Mirror[T]
	drainer *Drainer[T]
	probe   domain.ConnectivityProbe
	op      string
	opts    options
}

// NewRouter wires a router for one record type. The drainer supplies both the
// pending queue and the remote store.
func NewRouter[T domain.Record](mirror *queue.Mirror[T], drainer *Drainer[T], probe domain.ConnectivityProbe, opts ...Option) *Router[T] {
	return &Router[T]{
		mirror:  mirror,
		drainer: drainer,
		probe:   probe,
		op:      "submit_" + strings.TrimSuffix(string(drainer.Collection()), "s"),
		opts:    newOptions(opts),
	}
}

// Submit validates rec, mirrors it locally and then delivers or queues it.
//
// A connected push that fails falls back to the queue and reports queued.
// A successful push is followed by one drain pass over the backlog.
func (r *Router[T]) Submit(ctx context.Context, rec T) (out Outcome, err error) {
	start := r.opts.now()
	defer func() {
		r.opts.metrics.Observe(ctx, r.op, err == nil, r.opts.now().Sub(start))
	}()

	if err := domain.Validate(rec); err != nil {
		return Outcome{}, err
	}
	if err := r.mirror.Append(ctx, rec); err != nil {
		r.opts.logger.Error("mirror append failed", "collection", r.drainer.Collection(), "error", err)
		return Outcome{}, fmt.Errorf("%w: %w", ErrLocalStore, err)
	}

	connected, probeErr := r.probe.Connected(ctx)
	if probeErr != nil {
		r.opts.logger.Warn("connectivity probe failed, treating as offline", "error", probeErr)
		connected = false
	}
	if !connected {
		return r.enqueue(ctx, rec)
	}

	id, pushErr := r.drainer.push(ctx, rec)
	if pushErr != nil {
		r.opts.logger.Error("remote push failed, queueing", "collection", r.drainer.Collection(), "error", pushErr)
		return r.enqueue(ctx, rec)
	}
	out = Outcome{Delivered: DeliveredRemote, ID: id}
	report, ran, drainErr := r.drainer.TryDrain(ctx)
	switch {
	case drainErr != nil:
		r.opts.logger.Error("backlog drain failed", "collection", r.drainer.Collection(), "error", drainErr)
	case ran && report.Attempted > 0:
		out.Backlog = &report
	}
	return out, nil
}

func (r *Router[T]) enqueue(ctx context.Context, rec T) (Outcome, error) {
	if err := r.drainer.Pending().Enqueue(ctx, rec); err != nil {
		r.opts.logger.Error("enqueue failed", "collection", r.drainer.Collection(), "error", err)
		return Outcome{}, fmt.Errorf("%w: %w", ErrLocalStore, err)
	}
	return Outcome{Delivered: DeliveredQueued}, nil
}
