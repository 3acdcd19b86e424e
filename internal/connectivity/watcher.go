package connectivity

import (
	"context"
	"sync"
	"time"

	"herdsync/pkg/domain"
)

// Watcher polls a probe and reports transitions. The first observation is
// always reported.
type Watcher struct {
	probe    domain.ConnectivityProbe
	interval time.Duration
	now      func() time.Time
}

// NewWatcher polls probe every interval (minimum one second).
func NewWatcher(probe domain.ConnectivityProbe, interval time.Duration) *Watcher {
	if interval < time.Second {
		interval = time.Second
	}
	return &Watcher{probe: probe, interval: interval, now: time.Now}
}

// Run emits events until ctx is done, then closes the returned channel.
func (w *Watcher) Run(ctx context.Context) <-chan domain.ConnectivityEvent {
	out := make(chan domain.ConnectivityEvent)
	go func() {
		defer close(out)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		var (
			last  bool
			known bool
		)
		for {
			connected, err := w.probe.Connected(ctx)
			if err != nil {
				connected = false
			}
			if !known || connected != last {
				known, last = true, connected
				select {
				case out <- domain.ConnectivityEvent{Connected: connected, At: w.now()}:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Fanout copies every event from in to n outputs. Each output is closed
// when in closes or ctx is done.
func Fanout(ctx context.Context, in <-chan domain.ConnectivityEvent, n int) []<-chan domain.ConnectivityEvent {
	outs := make([]chan domain.ConnectivityEvent, n)
	ro := make([]<-chan domain.ConnectivityEvent, n)
	for i := range outs {
		outs[i] = make(chan domain.ConnectivityEvent, 1)
		ro[i] = outs[i]
	}
	go func() {
		defer func() {
			for _, o := range outs {
				close(o)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-in:
				if !ok {
					return
				}
				var wg sync.WaitGroup
				for _, o := range outs {
					wg.Add(1)
					go func(o chan domain.ConnectivityEvent) {
						defer wg.Done()
						select {
						case o <- ev:
						case <-ctx.Done():
						}
					}(o)
				}
				wg.Wait()
			}
		}
	}()
	return ro
}
