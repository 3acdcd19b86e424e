// Package queue persists ordered record lists in a LocalStore. A List backs
// both the Pending Queue (records awaiting remote delivery) and the Local
// Mirror (the on-device copy of everything submitted).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"herdsync/pkg/domain"
)

// List is a JSON array of T stored under a single key. Every mutation reads
// the whole list and writes it back under mu, so concurrent callers sharing
// a List never lose each other's writes. Use one List per key.
type List[T any] struct {
	mu      sync.Mutex
	backend domain.LocalStore
	key     string
}

// NewList binds a list to key in store.
func NewList[T any](store domain.LocalStore, key string) *List[T] {
	return &List[T]{backend: store, key: key}
}

// Key returns the storage key backing the list.
func (l *List[T]) Key() string { return l.key }

// Load returns the persisted items. An absent key is an empty list.
func (l *List[T]) Load(ctx context.Context) ([]T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

// Append adds item at the end of the list.
func (l *List[T]) Append(ctx context.Context, item T) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	items, err := l.load(ctx)
	if err != nil {
		return err
	}
	return l.store(ctx, append(items, item))
}

// TrimFront removes the first n items and keeps anything after them. When
// the list already holds n items or fewer the key is removed.
func (l *List[T]) TrimFront(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	items, err := l.load(ctx)
	if err != nil {
		return err
	}
	if len(items) <= n {
		return l.remove(ctx)
	}
	return l.store(ctx, items[n:])
}

// Clear removes the persisted list.
func (l *List[T]) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remove(ctx)
}

// Len returns the number of persisted items.
func (l *List[T]) Len(ctx context.Context) (int, error) {
	items, err := l.Load(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (l *List[T]) load(ctx context.Context) ([]T, error) {
	raw, ok, err := l.backend.Get(ctx, l.key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", l.key, err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", l.key, err)
	}
	return items, nil
}

func (l *List[T]) store(ctx context.Context, items []T) error {
	encoded, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", l.key, err)
	}
	if err := l.backend.Set(ctx, l.key, string(encoded)); err != nil {
		return fmt.Errorf("write %s: %w", l.key, err)
	}
	return nil
}

func (l *List[T]) remove(ctx context.Context) error {
	if err := l.backend.Remove(ctx, l.key); err != nil {
		return fmt.Errorf("remove %s: %w", l.key, err)
	}
	return nil
}
