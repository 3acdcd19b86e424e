// Package auth holds the session broadcast shared by the remote auth
// adapters in its subpackages.
package auth

import (
	"context"
	"errors"
	"sync"

	"herdsync/pkg/domain"
)

// ErrInvalidCredentials is returned by SignIn for rejected credentials.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Hub tracks the current identity and fans session changes out to
// subscribers. Each subscriber sees the current state first.
type Hub struct {
	mu      sync.Mutex
	current *domain.Identity
	subs    map[chan domain.SessionEvent]struct{}
}

// NewHub returns a hub with no identity.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan domain.SessionEvent]struct{})}
}

// Current returns the identity, if any.
func (h *Hub) Current() (domain.Identity, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return domain.Identity{}, false
	}
	return *h.current, true
}

// Set replaces the identity (nil signs out) and notifies subscribers.
func (h *Hub) Set(id *domain.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id != nil {
		cp := *id
		id = &cp
	}
	h.current = id
	for ch := range h.subs {
		deliver(ch, domain.SessionEvent{Identity: id})
	}
}

// Subscribe returns a channel receiving the current state immediately and
// every later change. It is closed when ctx is done.
func (h *Hub) Subscribe(ctx context.Context) <-chan domain.SessionEvent {
	ch := make(chan domain.SessionEvent, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	deliver(ch, domain.SessionEvent{Identity: h.current})
	h.mu.Unlock()
	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}()
	return ch
}

// deliver keeps only the newest event for a subscriber that has not read
// the previous one.
func deliver(ch chan domain.SessionEvent, ev domain.SessionEvent) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
