// Package memory is an AuthService backed by a fixed credential table.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"herdsync/internal/auth"
	"herdsync/pkg/domain"
)

var _ domain.AuthService = (*Service)(nil)

// DefaultSessionTTL bounds how long a sign-in stays valid.
const DefaultSessionTTL = 24 * time.Hour

// Service signs in against users (email -> password).
type Service struct {
	users map[string]string
	hub   *auth.Hub
	ttl   time.Duration
	now   func() time.Time
}

// New returns a service for users. Emails are matched case-insensitively.
func New(users map[string]string) *Service {
	norm := make(map[string]string, len(users))
	for email, pw := range users {
		norm[strings.ToLower(strings.TrimSpace(email))] = pw
	}
	return &Service{users: norm, hub: auth.NewHub(), ttl: DefaultSessionTTL, now: time.Now}
}

// ParseUsers reads "email:password,email:password".
func ParseUsers(list string) (map[string]string, error) {
	users := map[string]string{}
	for _, pair := range strings.Split(list, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		email, pw, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(email) == "" || pw == "" {
			return nil, fmt.Errorf("malformed user entry %q", pair)
		}
		users[strings.TrimSpace(email)] = pw
	}
	return users, nil
}

// SignIn implements domain.AuthService.
func (s *Service) SignIn(ctx context.Context, creds domain.Credentials) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, err
	}
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	pw, ok := s.users[email]
	if !ok || pw != creds.Password {
		return domain.Identity{}, auth.ErrInvalidCredentials
	}
	sum := sha256.Sum256([]byte(email))
	id := domain.Identity{UID: hex.EncodeToString(sum[:8]), Email: email, ExpiresAt: s.now().Add(s.ttl)}
	s.hub.Set(&id)
	return id, nil
}

// SignOut implements domain.AuthService.
func (s *Service) SignOut(context.Context) error {
	s.hub.Set(nil)
	return nil
}

// Current implements domain.AuthService. Expired sessions read as signed out.
func (s *Service) Current(context.Context) (domain.Identity, bool, error) {
	id, ok := s.hub.Current()
	if ok && !id.ExpiresAt.IsZero() && !s.now().Before(id.ExpiresAt) {
		s.hub.Set(nil)
		return domain.Identity{}, false, nil
	}
	return id, ok, nil
}

// Subscribe implements domain.AuthService.
func (s *Service) Subscribe(ctx context.Context) <-chan domain.SessionEvent {
	return s.hub.Subscribe(ctx)
}
