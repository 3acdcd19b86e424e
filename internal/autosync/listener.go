package autosync

import (
	"context"
	"sync"

	"herdsync/pkg/domain"
)

// Listener drains one record type's queue whenever connectivity is reported.
type Listener[T domain.Record] struct {
	drainer *Drainer[T]
	opts    options
}

// NewListener returns a listener driving drainer.
func NewListener[T domain.Record](drainer *Drainer[T], opts ...Option) *Listener[T] {
	return &Listener[T]{drainer: drainer, opts: newOptions(opts)}
}

// Run consumes events until ctx is done or events is closed, then waits for
// the pass in flight. Passes outlive ctx cancellation so a queue is never
// cleared after half its pushes were cancelled.
func (l *Listener[T]) Run(ctx context.Context, events <-chan domain.ConnectivityEvent) {
	var wg sync.WaitGroup
	defer wg.Wait()
	drainCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !ev.Connected {
				continue
			}
			if l.drainer.State() == Draining {
				l.opts.logger.Debug("connected while draining, ignoring", "collection", l.drainer.Collection())
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				report, ran, err := l.drainer.TryDrain(drainCtx)
				switch {
				case err != nil:
					l.opts.logger.Error("auto-sync drain failed", "collection", l.drainer.Collection(), "error", err)
				case ran && report.Attempted > 0:
					l.opts.logger.Info("auto-sync complete", "collection", l.drainer.Collection(),
						"attempted", report.Attempted, "failed", report.Failed)
				}
			}()
		}
	}
}
