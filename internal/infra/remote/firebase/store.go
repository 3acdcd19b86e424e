// Package firebase pushes records to a Firebase Realtime Database over its
// REST interface.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"herdsync/pkg/domain"
)

var _ domain.RemoteStore = (*Store)(nil)

const defaultTimeout = 15 * time.Second

// TokenSource supplies the id token sent as the auth query parameter.
// An empty token sends the request unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Store issues POST <base>/<collection>.json for every push.
type Store struct {
	base   string
	client *http.Client
	tokens TokenSource
}

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient overrides the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTokenSource authenticates pushes.
func WithTokenSource(ts TokenSource) Option {
	return func(s *Store) { s.tokens = ts }
}

// New constructs a Store for the database rooted at baseURL
// (e.g. https://project-default-rtdb.firebaseio.com).
func New(baseURL string, opts ...Option) (*Store, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("firebase database url required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse firebase url: %w", err)
	}
	s := &Store{base: base, client: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type pushResponse struct {
	Name string `json:"name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Push appends payload to collection and returns the generated child name.
func (s *Store) Push(ctx context.Context, collection domain.Collection, payload json.RawMessage) (string, error) {
	endpoint := s.base + "/" + url.PathEscape(string(collection)) + ".json"
	if s.tokens != nil {
		token, err := s.tokens.Token(ctx)
		if err != nil {
			return "", fmt.Errorf("firebase token: %w", err)
		}
		if token != "" {
			endpoint += "?auth=" + url.QueryEscape(token)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("push %s: %w", collection, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read push response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		var e errorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return "", fmt.Errorf("push %s: %s (%d)", collection, e.Error, resp.StatusCode)
		}
		return "", fmt.Errorf("push %s: unexpected status %d", collection, resp.StatusCode)
	}
	var out pushResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode push response: %w", err)
	}
	if out.Name == "" {
		return "", fmt.Errorf("push %s: empty name in response", collection)
	}
	return out.Name, nil
}
