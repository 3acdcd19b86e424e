// Package connectivity answers "is the network reachable" and turns probe
// results into a stream of transitions.
package connectivity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"herdsync/pkg/domain"
)

var (
	_ domain.ConnectivityProbe = (*HTTPProbe)(nil)
	_ domain.ConnectivityProbe = (*Switch)(nil)
)

const defaultProbeTimeout = 5 * time.Second

// HTTPProbe issues a HEAD request to a well-known URL. Any response below
// 500 counts as connected; transport errors count as disconnected.
type HTTPProbe struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPProbe returns a probe for url. A zero timeout selects 5s.
func NewHTTPProbe(url string, client *http.Client, timeout time.Duration) *HTTPProbe {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &HTTPProbe{url: url, client: client, timeout: timeout}
}

// Connected implements domain.ConnectivityProbe. The error return is only
// used for malformed configuration.
func (p *HTTPProbe) Connected(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false, fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError, nil
}

// Switch is a manually toggled probe. Subscribers receive every change.
type Switch struct {
	mu        sync.Mutex
	connected bool
	subs      []chan domain.ConnectivityEvent
	now       func() time.Time
}

// NewSwitch returns a switch in the given state.
func NewSwitch(connected bool) *Switch {
	return &Switch{connected: connected, now: time.Now}
}

// Connected implements domain.ConnectivityProbe.
func (s *Switch) Connected(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected, nil
}

// Set changes the state and notifies subscribers when it differs.
// Slow subscribers miss events rather than block Set.
func (s *Switch) Set(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected == connected {
		return
	}
	s.connected = connected
	ev := domain.ConnectivityEvent{Connected: connected, At: s.now()}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of state changes, closed when ctx is done.
func (s *Switch) Subscribe(ctx context.Context) <-chan domain.ConnectivityEvent {
	ch := make(chan domain.ConnectivityEvent, 8)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, c := range s.subs {
			if c == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}
