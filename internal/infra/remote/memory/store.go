// Package memory provides an in-process append-only remote collection store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"herdsync/pkg/domain"
)

var _ domain.RemoteStore = (*Store)(nil)

// Entry is a pushed payload with its generated id.
type Entry struct {
	ID      string
	Payload json.RawMessage
}

// Store keeps pushed payloads per collection in arrival order.
type Store struct {
	mu      sync.Mutex
	entries map[domain.Collection][]Entry
	fail    func(collection domain.Collection, payload json.RawMessage) error
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[domain.Collection][]Entry)}
}

// Fail installs a hook consulted before every push; a non-nil error rejects
// the push. Pass nil to remove it.
func (s *Store) Fail(fn func(collection domain.Collection, payload json.RawMessage) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fn
}

// Push appends payload to collection and returns a new uuid.
func (s *Store) Push(ctx context.Context, collection domain.Collection, payload json.RawMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		if err := s.fail(collection, payload); err != nil {
			return "", fmt.Errorf("push %s: %w", collection, err)
		}
	}
	id := uuid.NewString()
	s.entries[collection] = append(s.entries[collection], Entry{ID: id, Payload: append(json.RawMessage(nil), payload...)})
	return id, nil
}

// Entries returns a copy of everything pushed to collection.
func (s *Store) Entries(collection domain.Collection) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries[collection]))
	copy(out, s.entries[collection])
	return out
}

// Len reports how many entries collection holds.
func (s *Store) Len(collection domain.Collection) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[collection])
}
