package domain

import (
	"context"
	"encoding/json"
	"time"
)

// LocalStore is the device-local string key-value store.
// Get reports ok=false for absent keys.
type LocalStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// RemoteStore is an append-only collection store. Push returns the
// server-generated identifier of the new entry.
type RemoteStore interface {
	Push(ctx context.Context, collection Collection, payload json.RawMessage) (string, error)
}

// ConnectivityProbe answers whether the network is reachable right now.
type ConnectivityProbe interface {
	Connected(ctx context.Context) (bool, error)
}

// ConnectivityEvent is a connectivity transition.
type ConnectivityEvent struct {
	Connected bool
	At        time.Time
}

// Credentials used to sign in to the remote auth service.
type Credentials struct {
	Email    string
	Password string
}

// Identity is the authenticated remote user.
type Identity struct {
	UID       string
	Email     string
	ExpiresAt time.Time
}

// SessionEvent carries the current identity, or nil when signed out.
type SessionEvent struct {
	Identity *Identity
}

// AuthService is the remote authentication service. Subscribe delivers the
// current session state immediately and after each change until ctx is done.
type AuthService interface {
	SignIn(ctx context.Context, creds Credentials) (Identity, error)
	SignOut(ctx context.Context) error
	Current(ctx context.Context) (Identity, bool, error)
	Subscribe(ctx context.Context) <-chan SessionEvent
}
