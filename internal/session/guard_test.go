package session

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"go.uber.org/goleak"

	authmemory "herdsync/internal/auth/memory"
	kvmemory "herdsync/internal/infra/kv/memory"
	"herdsync/pkg/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	guard *Guard
	local *kvmemory.Store
	auth  *authmemory.Service
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		local: kvmemory.NewStore(),
		auth:  authmemory.New(map[string]string{"officer@example.org": "secret"}),
		now:   time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC),
	}
	f.guard = NewGuard(f.local, f.auth, WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) signIn(t *testing.T) State {
	t.Helper()
	st, err := f.guard.SignIn(context.Background(), "officer@example.org", "secret")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	return st
}

func (f *fixture) unlockWithNewPIN(t *testing.T, pin string) {
	t.Helper()
	if st := f.signIn(t); st != AwaitingPinSetup {
		t.Fatalf("expected pin setup after first sign in, got %s", st)
	}
	if err := f.guard.CreatePIN(context.Background(), pin, pin); err != nil {
		t.Fatalf("create pin: %v", err)
	}
	if f.guard.State() != Unlocked {
		t.Fatalf("expected unlocked, got %s", f.guard.State())
	}
}

func TestStartWithoutSession(t *testing.T) {
	f := newFixture(t)
	st, err := f.guard.Start(context.Background())
	if err != nil || st != LoggedOut {
		t.Fatalf("expected logged out, got %s %v", st, err)
	}
}

func TestStartWithSessionAndLegacyPIN(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.auth.SignIn(ctx, domain.Credentials{Email: "officer@example.org", Password: "secret"})
	_ = f.local.Set(ctx, domain.KeyLegacyPIN, "4321")
	st, err := f.guard.Start(ctx)
	if err != nil || st != AwaitingPinEntry {
		t.Fatalf("expected pin entry, got %s %v", st, err)
	}
	if st, err := f.guard.EnterPIN(ctx, "4321"); err != nil || st != Unlocked {
		t.Fatalf("legacy pin should unlock, got %s %v", st, err)
	}
}

func TestSignInStoresMarkers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.guard.SignIn(ctx, "officer@example.org", "wrong"); err == nil {
		t.Fatalf("expected sign in failure")
	}
	if f.guard.State() != LoggedOut {
		t.Fatalf("failed sign in must not change state")
	}
	f.signIn(t)
	if v, _, _ := f.local.Get(ctx, domain.KeyStoredUsername); v != "officer@example.org" {
		t.Fatalf("stored username = %q", v)
	}
	if v, _, _ := f.local.Get(ctx, domain.KeyIsLoggedIn); v != "true" {
		t.Fatalf("isLoggedIn = %q", v)
	}
}

func TestCreatePINValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.guard.CreatePIN(ctx, "1234", "1234"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state while logged out, got %v", err)
	}
	f.signIn(t)
	for _, tc := range []struct {
		pin, confirm string
		want         error
	}{
		{"123", "123", ErrInvalidPIN},
		{"12a4", "12a4", ErrInvalidPIN},
		{"12345", "12345", ErrInvalidPIN},
		{"1234", "1243", ErrPINMismatch},
	} {
		if err := f.guard.CreatePIN(ctx, tc.pin, tc.confirm); !errors.Is(err, tc.want) {
			t.Fatalf("CreatePIN(%q,%q) = %v, want %v", tc.pin, tc.confirm, err, tc.want)
		}
	}
	if f.guard.State() != AwaitingPinSetup {
		t.Fatalf("rejected pins must not unlock")
	}
	if err := f.guard.CreatePIN(ctx, "0420", "0420"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if v, _, _ := f.local.Get(ctx, domain.KeyLocalPIN); v != "0420" {
		t.Fatalf("stored pin = %q", v)
	}
	if v, _, _ := f.local.Get(ctx, domain.KeyLastActiveAt); v != strconv.FormatInt(f.now.UnixMilli(), 10) {
		t.Fatalf("lastActiveAt = %q", v)
	}
}

func TestEnterPINNoLockout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.unlockWithNewPIN(t, "1234")
	_ = f.guard.Background(ctx)
	f.now = f.now.Add(31 * time.Minute)
	if st, _ := f.guard.Foreground(ctx); st != AwaitingPinEntry {
		t.Fatalf("expected re-lock, got %s", st)
	}
	for i := 0; i < 10; i++ {
		st, err := f.guard.EnterPIN(ctx, "1235")
		if !errors.Is(err, ErrIncorrectPIN) || st != AwaitingPinEntry {
			t.Fatalf("attempt %d: got %s %v", i, st, err)
		}
	}
	if st, err := f.guard.EnterPIN(ctx, "1234"); err != nil || st != Unlocked {
		t.Fatalf("correct pin after failures: %s %v", st, err)
	}
}

func TestForegroundTimerBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.unlockWithNewPIN(t, "1234")

	_ = f.guard.Background(ctx)
	if v, _, _ := f.local.Get(ctx, domain.KeyLocked); v != "true" {
		t.Fatalf("background should mark locked, got %q", v)
	}
	f.now = f.now.Add(29 * time.Minute)
	if st, _ := f.guard.Foreground(ctx); st != Unlocked {
		t.Fatalf("29 minutes should stay unlocked, got %s", st)
	}
	_ = f.guard.Background(ctx)
	f.now = f.now.Add(30 * time.Minute)
	if st, _ := f.guard.Foreground(ctx); st != Unlocked {
		t.Fatalf("exactly 30 minutes should stay unlocked, got %s", st)
	}
	_ = f.guard.Background(ctx)
	f.now = f.now.Add(31 * time.Minute)
	if st, _ := f.guard.Foreground(ctx); st != AwaitingPinEntry {
		t.Fatalf("31 minutes should lock, got %s", st)
	}
}

func TestEnterPINWithoutStoredPIN(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.unlockWithNewPIN(t, "1234")
	_ = f.guard.Background(ctx)
	f.now = f.now.Add(time.Hour)
	_, _ = f.guard.Foreground(ctx)
	_ = f.local.Remove(ctx, domain.KeyLocalPIN)
	if st, err := f.guard.EnterPIN(ctx, "1234"); err != nil || st != AwaitingPinSetup {
		t.Fatalf("expected pin setup when authenticated, got %s %v", st, err)
	}
}

func TestLogoutClearsPINAndMarkers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.unlockWithNewPIN(t, "1234")
	_ = f.local.Set(ctx, domain.KeyLegacyPIN, "9999")
	if err := f.guard.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if f.guard.State() != LoggedOut {
		t.Fatalf("expected logged out")
	}
	for _, key := range []string{domain.KeyLocalPIN, domain.KeyLegacyPIN, domain.KeyIsLoggedIn, domain.KeyLocalAuth, domain.KeyStoredUsername} {
		if _, ok, _ := f.local.Get(ctx, key); ok {
			t.Fatalf("%s should be cleared", key)
		}
	}
	if _, ok, _ := f.auth.Current(ctx); ok {
		t.Fatalf("remote session should be signed out")
	}
	if st := f.signIn(t); st != AwaitingPinSetup {
		t.Fatalf("sign in after logout should require a new pin, got %s", st)
	}
}

func TestRemoteSessionLossKeepsPIN(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.unlockWithNewPIN(t, "1234")
	if st, _ := f.guard.HandleSession(ctx, domain.SessionEvent{}); st != LoggedOut {
		t.Fatalf("expected logged out, got %s", st)
	}
	if v, _, _ := f.local.Get(ctx, domain.KeyLocalPIN); v != "1234" {
		t.Fatalf("pin should survive remote sign out")
	}
	id := domain.Identity{UID: "u"}
	if st, _ := f.guard.HandleSession(ctx, domain.SessionEvent{Identity: &id}); st != AwaitingPinEntry {
		t.Fatalf("returning session with pin should require entry, got %s", st)
	}
}

func TestRunSerializesObservers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t)
	f.unlockWithNewPIN(t, "1234")

	states := f.guard.Subscribe(ctx)
	if s := <-states; s != Unlocked {
		t.Fatalf("subscribe should start with current state, got %s", s)
	}
	sessions := f.auth.Subscribe(ctx)
	<-sessions // current identity
	lifecycle := make(chan Lifecycle)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.guard.Run(ctx, sessions, lifecycle)
	}()

	lifecycle <- Background
	_ = f.auth.SignOut(ctx)
	if s := <-states; s != LoggedOut {
		t.Fatalf("expected logged out via session observer, got %s", s)
	}
	close(lifecycle)
	cancel()
	<-done
	for range states {
	}
}

// slowAuth holds SignIn until release is closed.
type slowAuth struct {
	*authmemory.Service
	entered chan struct{}
	release chan struct{}
}

func (a *slowAuth) SignIn(ctx context.Context, creds domain.Credentials) (domain.Identity, error) {
	close(a.entered)
	<-a.release
	return a.Service.SignIn(ctx, creds)
}

func TestSignInDoesNotBlockStateReads(t *testing.T) {
	ctx := context.Background()
	auth := &slowAuth{
		Service: authmemory.New(map[string]string{"officer@example.org": "secret"}),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	g := NewGuard(kvmemory.NewStore(), auth)

	type result struct {
		st  State
		err error
	}
	done := make(chan result, 1)
	go func() {
		st, err := g.SignIn(ctx, "officer@example.org", "secret")
		done <- result{st, err}
	}()
	<-auth.entered

	read := make(chan State, 1)
	go func() { read <- g.State() }()
	select {
	case st := <-read:
		if st != LoggedOut {
			t.Fatalf("expected logged out during sign in, got %s", st)
		}
	case <-time.After(time.Second):
		t.Fatal("State blocked behind remote sign in")
	}

	id := domain.Identity{UID: "u", Email: "officer@example.org"}
	if st, err := g.HandleSession(ctx, domain.SessionEvent{Identity: &id}); err != nil || st != AwaitingPinSetup {
		t.Fatalf("session observer should run during sign in, got %s %v", st, err)
	}
	close(auth.release)
	res := <-done
	if res.err != nil || res.st != AwaitingPinSetup {
		t.Fatalf("sign in: %s %v", res.st, res.err)
	}
}

func TestParseLifecycle(t *testing.T) {
	if l, err := ParseLifecycle("active"); err != nil || l != Foreground {
		t.Fatalf("active: %v %v", l, err)
	}
	if l, err := ParseLifecycle("background"); err != nil || l.String() != "background" {
		t.Fatalf("background: %v %v", l, err)
	}
	if _, err := ParseLifecycle("sleeping"); err == nil {
		t.Fatalf("expected error")
	}
}
