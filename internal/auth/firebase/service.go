// Package firebase signs in with Firebase Authentication's email/password
// REST endpoints and keeps the resulting id token fresh.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"herdsync/internal/auth"
	"herdsync/pkg/domain"
)

var _ domain.AuthService = (*Service)(nil)

const (
	DefaultIdentityURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultTokenURL    = "https://securetoken.googleapis.com/v1"

	refreshSkew = time.Minute
)

// Claims are the id token claims herdsync reads.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Service implements domain.AuthService against Firebase Authentication.
type Service struct {
	apiKey      string
	identityURL string
	tokenURL    string
	client      *http.Client
	now         func() time.Time
	hub         *auth.Hub

	mu           sync.Mutex
	idToken      string
	refreshToken string
}

// Option configures a Service.
type Option func(*Service)

// WithEndpoints overrides the identity toolkit and secure token base URLs.
func WithEndpoints(identityURL, tokenURL string) Option {
	return func(s *Service) {
		if identityURL != "" {
			s.identityURL = strings.TrimRight(identityURL, "/")
		}
		if tokenURL != "" {
			s.tokenURL = strings.TrimRight(tokenURL, "/")
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.client = c
		}
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a service for the project identified by apiKey.
func New(apiKey string, opts ...Option) (*Service, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("firebase api key required")
	}
	s := &Service{
		apiKey:      apiKey,
		identityURL: DefaultIdentityURL,
		tokenURL:    DefaultTokenURL,
		client:      &http.Client{Timeout: 15 * time.Second},
		now:         time.Now,
		hub:         auth.NewHub(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn implements domain.AuthService.
func (s *Service) SignIn(ctx context.Context, creds domain.Credentials) (domain.Identity, error) {
	body, err := json.Marshal(signInRequest{Email: strings.TrimSpace(creds.Email), Password: creds.Password, ReturnSecureToken: true})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("encode sign-in: %w", err)
	}
	endpoint := s.identityURL + "/accounts:signInWithPassword?key=" + url.QueryEscape(s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("build sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	var out signInResponse
	if err := s.do(req, &out); err != nil {
		return domain.Identity{}, err
	}
	id, err := s.identityFromToken(out.IDToken, out.LocalID, out.Email)
	if err != nil {
		return domain.Identity{}, err
	}
	s.mu.Lock()
	s.idToken, s.refreshToken = out.IDToken, out.RefreshToken
	s.mu.Unlock()
	s.hub.Set(&id)
	return id, nil
}

// SignOut implements domain.AuthService. Firebase has no server-side sign
// out for password sessions; the tokens are dropped locally.
func (s *Service) SignOut(context.Context) error {
	s.mu.Lock()
	s.idToken, s.refreshToken = "", ""
	s.mu.Unlock()
	s.hub.Set(nil)
	return nil
}

// Current implements domain.AuthService. An expired token is refreshed.
func (s *Service) Current(ctx context.Context) (domain.Identity, bool, error) {
	if _, err := s.Token(ctx); err != nil {
		return domain.Identity{}, false, err
	}
	id, ok := s.hub.Current()
	return id, ok, nil
}

// Subscribe implements domain.AuthService.
func (s *Service) Subscribe(ctx context.Context) <-chan domain.SessionEvent {
	return s.hub.Subscribe(ctx)
}

// Token returns a valid id token, refreshing it when it is about to expire.
// It returns "" when signed out. A rejected refresh signs the user out.
func (s *Service) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	token, refresh := s.idToken, s.refreshToken
	s.mu.Unlock()
	if token == "" {
		return "", nil
	}
	id, ok := s.hub.Current()
	if ok && s.now().Add(refreshSkew).Before(id.ExpiresAt) {
		return token, nil
	}
	if refresh == "" {
		_ = s.SignOut(ctx)
		return "", nil
	}
	form := url.Values{"grant_type": {"refresh_token"}, "refresh_token": {refresh}}
	endpoint := s.tokenURL + "/token?key=" + url.QueryEscape(s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	var out refreshResponse
	if err := s.do(req, &out); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			_ = s.SignOut(ctx)
			return "", nil
		}
		return "", err
	}
	fresh, err := s.identityFromToken(out.IDToken, out.UserID, id.Email)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.idToken, s.refreshToken = out.IDToken, out.RefreshToken
	s.mu.Unlock()
	s.hub.Set(&fresh)
	return out.IDToken, nil
}

func (s *Service) do(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("firebase auth: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read firebase auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e apiError
		_ = json.Unmarshal(body, &e)
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", auth.ErrInvalidCredentials, e.Error.Message)
		}
		return fmt.Errorf("firebase auth: status %d %s", resp.StatusCode, e.Error.Message)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode firebase auth response: %w", err)
	}
	return nil
}

// identityFromToken reads the uid, email and expiry from an id token
// received directly from Google over TLS. The signature is not checked here.
func (s *Service) identityFromToken(raw, uid, email string) (domain.Identity, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return domain.Identity{}, fmt.Errorf("parse id token: %w", err)
	}
	if claims.Subject != "" {
		uid = claims.Subject
	}
	if claims.Email != "" {
		email = claims.Email
	}
	id := domain.Identity{UID: uid, Email: email}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	if id.UID == "" {
		return domain.Identity{}, errors.New("id token has no subject")
	}
	return id, nil
}
