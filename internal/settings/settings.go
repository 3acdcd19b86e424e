// Package settings stores the operator's county and subcounty selection.
package settings

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"herdsync/pkg/domain"
)

// ErrUnknownCounty is returned for counties outside Counties.
var ErrUnknownCounty = errors.New("unknown county")

// Counties lists the selectable counties.
var Counties = []string{"Samburu", "Turkana", "Isiolo", "Marsabit", "Kajiado", "Narok"}

// Store reads and writes the selection in a LocalStore.
type Store struct {
	local domain.LocalStore
}

// New returns a settings store.
func New(local domain.LocalStore) *Store { return &Store{local: local} }

// SetCounty selects county; matching is case-insensitive and the canonical
// spelling is stored.
func (s *Store) SetCounty(ctx context.Context, county string) error {
	idx := slices.IndexFunc(Counties, func(c string) bool { return strings.EqualFold(c, strings.TrimSpace(county)) })
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownCounty, county)
	}
	return s.set(ctx, domain.KeySelectedCounty, Counties[idx])
}

// County returns the selected county, or "" when none is set.
func (s *Store) County(ctx context.Context) (string, error) {
	return s.get(ctx, domain.KeySelectedCounty)
}

// SetSubcounty stores a free-text subcounty.
func (s *Store) SetSubcounty(ctx context.Context, subcounty string) error {
	return s.set(ctx, domain.KeySelectedSubcounty, strings.TrimSpace(subcounty))
}

// Subcounty returns the selected subcounty, or "".
func (s *Store) Subcounty(ctx context.Context) (string, error) {
	return s.get(ctx, domain.KeySelectedSubcounty)
}

func (s *Store) set(ctx context.Context, key, value string) error {
	if err := s.local.Set(ctx, key, value); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, _, err := s.local.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}
