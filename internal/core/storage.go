package core

import (
	"context"
	"fmt"
	"io"
	"net/http"

	authfirebase "herdsync/internal/auth/firebase"
	authmemory "herdsync/internal/auth/memory"
	"herdsync/internal/blob"
	"herdsync/internal/connectivity"
	kvmemory "herdsync/internal/infra/kv/memory"
	kvsqlite "herdsync/internal/infra/kv/sqlite"
	remoteblob "herdsync/internal/infra/remote/blob"
	remotefirebase "herdsync/internal/infra/remote/firebase"
	remotememory "herdsync/internal/infra/remote/memory"
	remotepostgres "herdsync/internal/infra/remote/postgres"
	"herdsync/pkg/domain"
)

// LocalDriver identifies a device-local store implementation.
type LocalDriver string

const (
	LocalMemory LocalDriver = "memory" // in-memory only (tests / ephemeral)
	LocalSQLite LocalDriver = "sqlite" // embedded sqlite file
)

// RemoteDriver identifies a remote collection store implementation.
type RemoteDriver string

const (
	RemoteMemory   RemoteDriver = "memory"   // in-process (tests / demo)
	RemotePostgres RemoteDriver = "postgres" // PostgreSQL records table
	RemoteBlob     RemoteDriver = "blob"     // one object per record (fs, s3)
	RemoteFirebase RemoteDriver = "firebase" // Realtime Database REST
)

// AuthDriver identifies a remote auth implementation.
type AuthDriver string

const (
	AuthMemory   AuthDriver = "memory"
	AuthFirebase AuthDriver = "firebase"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenLocalStore returns the configured LocalStore and a closer for it.
func OpenLocalStore(cfg LocalConfig) (domain.LocalStore, io.Closer, error) {
	switch LocalDriver(cfg.Driver) {
	case LocalMemory:
		return kvmemory.NewStore(), nopCloser{}, nil
	case LocalSQLite, "":
		st, err := kvsqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	default:
		return nil, nil, fmt.Errorf("unknown local driver %s", cfg.Driver)
	}
}

// OpenAuthService returns the configured AuthService.
func OpenAuthService(cfg AuthConfig) (domain.AuthService, error) {
	switch AuthDriver(cfg.Driver) {
	case AuthMemory, "":
		users, err := authmemory.ParseUsers(cfg.Users)
		if err != nil {
			return nil, fmt.Errorf("auth users: %w", err)
		}
		return authmemory.New(users), nil
	case AuthFirebase:
		svc, err := authfirebase.New(cfg.FirebaseAPIKey)
		if err != nil {
			return nil, err
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("unknown auth driver %s", cfg.Driver)
	}
}

// OpenRemoteStore returns the configured RemoteStore and a closer for it.
// auth is used to authenticate Firebase pushes when it can mint tokens.
func OpenRemoteStore(ctx context.Context, cfg RemoteConfig, auth domain.AuthService) (domain.RemoteStore, io.Closer, error) {
	switch RemoteDriver(cfg.Driver) {
	case RemoteMemory, "":
		return remotememory.NewStore(), nopCloser{}, nil
	case RemotePostgres:
		st, err := remotepostgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	case RemoteBlob:
		objects, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			return nil, nil, err
		}
		return remoteblob.New(objects), nopCloser{}, nil
	case RemoteFirebase:
		var opts []remotefirebase.Option
		if ts, ok := auth.(remotefirebase.TokenSource); ok {
			opts = append(opts, remotefirebase.WithTokenSource(ts))
		}
		st, err := remotefirebase.New(cfg.FirebaseURL, opts...)
		if err != nil {
			return nil, nil, err
		}
		return st, nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown remote driver %s", cfg.Driver)
	}
}

// OpenProbe returns an HTTP connectivity probe for cfg.
func OpenProbe(cfg ProbeConfig) *connectivity.HTTPProbe {
	return connectivity.NewHTTPProbe(cfg.URL, &http.Client{}, cfg.Timeout)
}
