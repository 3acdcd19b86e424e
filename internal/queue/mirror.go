package queue

import "context"

// Mirror is the on-device copy of every submitted record. It only grows
// through Append and only shrinks through an explicit Clear.
type Mirror[T any] struct {
	list *List[T]
}

// NewMirror wraps list as a mirror.
func NewMirror[T any](list *List[T]) *Mirror[T] {
	return &Mirror[T]{list: list}
}

// Key returns the storage key backing the mirror.
func (m *Mirror[T]) Key() string { return m.list.Key() }

// Append records item.
func (m *Mirror[T]) Append(ctx context.Context, item T) error { return m.list.Append(ctx, item) }

// All returns every mirrored record in submission order.
func (m *Mirror[T]) All(ctx context.Context) ([]T, error) { return m.list.Load(ctx) }

// Clear removes every mirrored record.
func (m *Mirror[T]) Clear(ctx context.Context) error { return m.list.Clear(ctx) }
