package memory

import (
	"context"
	"testing"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected absent key, ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "selectedCounty", "Turkana"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.Get(ctx, "selectedCounty")
	if err != nil || !ok || v != "Turkana" {
		t.Fatalf("get = %q %v %v", v, ok, err)
	}
	if err := s.Remove(ctx, "selectedCounty"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(ctx, "selectedCounty"); err != nil {
		t.Fatalf("second remove should be a no-op: %v", err)
	}
	if len(s.Keys()) != 0 {
		t.Fatalf("expected no keys, got %v", s.Keys())
	}
}
