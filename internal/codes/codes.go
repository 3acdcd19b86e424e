// Package codes issues sequential offtake codes per county.
package codes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"herdsync/pkg/domain"
)

// ErrNoCounty is returned when no county is selected.
var ErrNoCounty = errors.New("county required for offtake code")

// Generator hands out PREFIX0001, PREFIX0002, ... where PREFIX is the first
// three letters of the county. Counters are persisted and never reused.
type Generator struct {
	mu    sync.Mutex
	store domain.LocalStore
}

// NewGenerator returns a generator persisting counters in store.
func NewGenerator(store domain.LocalStore) *Generator {
	return &Generator{store: store}
}

// Next increments and returns the county's next code.
func (g *Generator) Next(ctx context.Context, county string) (string, error) {
	prefix := domain.CountyPrefix(county)
	if prefix == "" {
		return "", ErrNoCounty
	}
	key := domain.OfftakeCounterKey(prefix)

	g.mu.Lock()
	defer g.mu.Unlock()
	current, err := g.current(ctx, key)
	if err != nil {
		return "", err
	}
	next := current + 1
	if err := g.store.Set(ctx, key, strconv.Itoa(next)); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	return fmt.Sprintf("%s%04d", prefix, next), nil
}

// Peek returns the code Next would issue without consuming it.
func (g *Generator) Peek(ctx context.Context, county string) (string, error) {
	prefix := domain.CountyPrefix(county)
	if prefix == "" {
		return "", ErrNoCounty
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	current, err := g.current(ctx, domain.OfftakeCounterKey(prefix))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, current+1), nil
}

func (g *Generator) current(ctx context.Context, key string) (int, error) {
	raw, ok, err := g.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, raw, err)
	}
	return n, nil
}
