package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"herdsync/internal/auth"
	"herdsync/pkg/domain"
)

func signedToken(t *testing.T, uid, email string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

type fakeFirebase struct {
	t        *testing.T
	now      time.Time
	refresh  int
	password string
}

func (f *fakeFirebase) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("key") != "api-key" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	switch r.URL.Path {
	case "/identity/accounts:signInWithPassword":
		var req signInRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != f.password || !req.ReturnSecureToken {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"INVALID_LOGIN_CREDENTIALS"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(signInResponse{
			IDToken:      signedToken(f.t, "uid-1", req.Email, f.now.Add(time.Hour)),
			RefreshToken: "refresh-1",
			LocalID:      "uid-1",
			Email:        req.Email,
		})
	case "/token/token":
		_ = r.ParseForm()
		if r.PostForm.Get("refresh_token") != "refresh-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.refresh++
		_ = json.NewEncoder(w).Encode(refreshResponse{
			IDToken:      signedToken(f.t, "uid-1", "officer@example.org", f.now.Add(2*time.Hour)),
			RefreshToken: "refresh-1",
			UserID:       "uid-1",
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newService(t *testing.T) (*Service, *fakeFirebase, *time.Time) {
	t.Helper()
	now := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	fake := &fakeFirebase{t: t, now: now, password: "secret"}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s, err := New("api-key",
		WithEndpoints(srv.URL+"/identity", srv.URL+"/token"),
		WithHTTPClient(srv.Client()),
		WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s, fake, &now
}

func TestSignInParsesClaims(t *testing.T) {
	s, _, _ := newService(t)
	id, err := s.SignIn(context.Background(), domain.Credentials{Email: "officer@example.org", Password: "secret"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if id.UID != "uid-1" || id.Email != "officer@example.org" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if !id.ExpiresAt.Equal(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %v", id.ExpiresAt)
	}
	if cur, ok, err := s.Current(context.Background()); err != nil || !ok || cur.UID != "uid-1" {
		t.Fatalf("current: %+v %v %v", cur, ok, err)
	}
}

func TestSignInRejectsBadPassword(t *testing.T) {
	s, _, _ := newService(t)
	_, err := s.SignIn(context.Background(), domain.Credentials{Email: "officer@example.org", Password: "wrong"})
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, ok, _ := s.Current(context.Background()); ok {
		t.Fatalf("should remain signed out")
	}
}

func TestTokenRefreshesNearExpiry(t *testing.T) {
	s, fake, now := newService(t)
	ctx := context.Background()
	if _, err := s.SignIn(ctx, domain.Credentials{Email: "officer@example.org", Password: "secret"}); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	first, _ := s.Token(ctx)
	if fake.refresh != 0 {
		t.Fatalf("fresh token must not refresh")
	}
	*now = now.Add(59 * time.Minute)
	fake.now = *now
	second, err := s.Token(ctx)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if fake.refresh != 1 || second == first {
		t.Fatalf("expected refresh, calls=%d", fake.refresh)
	}
	if err := s.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if tok, _ := s.Token(ctx); tok != "" {
		t.Fatalf("expected no token after sign out")
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(" "); err == nil {
		t.Fatalf("expected error")
	}
}
