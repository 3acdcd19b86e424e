package codes

import (
	"context"
	"errors"
	"testing"

	"herdsync/internal/infra/kv/memory"
	"herdsync/pkg/domain"
)

func TestNextIncrementsPerCounty(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	_ = store.Set(ctx, domain.OfftakeCounterKey("TUR"), "7")
	g := NewGenerator(store)

	if peek, _ := g.Peek(ctx, "Turkana"); peek != "TUR0008" {
		t.Fatalf("peek = %q", peek)
	}
	code, err := g.Next(ctx, "Turkana")
	if err != nil || code != "TUR0008" {
		t.Fatalf("next = %q, %v", code, err)
	}
	if v, _, _ := store.Get(ctx, "offtakeCodeCounter_TUR"); v != "8" {
		t.Fatalf("counter = %q", v)
	}
	if code, _ := g.Next(ctx, "Samburu"); code != "SAM0001" {
		t.Fatalf("fresh county code = %q", code)
	}
	if code, _ := g.Next(ctx, "turkana"); code != "TUR0009" {
		t.Fatalf("case-insensitive prefix = %q", code)
	}
}

func TestNextRequiresCounty(t *testing.T) {
	if _, err := NewGenerator(memory.NewStore()).Next(context.Background(), "  "); !errors.Is(err, ErrNoCounty) {
		t.Fatalf("expected ErrNoCounty, got %v", err)
	}
}

func TestNextRejectsCorruptCounter(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	_ = store.Set(ctx, domain.OfftakeCounterKey("ISI"), "abc")
	if _, err := NewGenerator(store).Next(ctx, "Isiolo"); err == nil {
		t.Fatalf("expected parse error")
	}
}
