// Package session gates the app behind remote sign-in plus a local 4-digit
// PIN and re-locks it after a period in the background.
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"herdsync/internal/logging"
	"herdsync/pkg/domain"
)

// State of the lock guard.
type State string

const (
	LoggedOut        State = "logged_out"
	AwaitingPinSetup State = "awaiting_pin_setup"
	AwaitingPinEntry State = "awaiting_pin_entry"
	Unlocked         State = "unlocked"
)

// Lifecycle is an app foreground/background transition.
type Lifecycle int

const (
	Background Lifecycle = iota + 1
	Foreground
)

func (l Lifecycle) String() string {
	switch l {
	case Background:
		return "background"
	case Foreground:
		return "foreground"
	}
	return "unknown"
}

// ParseLifecycle maps "background" and "foreground" to a Lifecycle.
func ParseLifecycle(s string) (Lifecycle, error) {
	switch s {
	case "background", "inactive":
		return Background, nil
	case "foreground", "active":
		return Foreground, nil
	}
	return 0, fmt.Errorf("unknown lifecycle phase %q", s)
}

// DefaultLockAfter is the background time after which the PIN is required again.
const DefaultLockAfter = 30 * time.Minute

var (
	ErrIncorrectPIN = errors.New("incorrect PIN")
	ErrInvalidPIN   = errors.New("PIN must be exactly 4 digits")
	ErrPINMismatch  = errors.New("PINs do not match")
	ErrInvalidState = errors.New("operation not allowed in current session state")
)

var pinPattern = regexp.MustCompile(`^\d{4}$`)

// Option configures a Guard.
type Option func(*Guard)

// WithLockAfter overrides DefaultLockAfter.
func WithLockAfter(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.lockAfter = d
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Guard is the session state machine. Every transition, whether triggered by
// user input, the auth observer or the lifecycle observer, runs under one
// mutex so the observers cannot interleave. Calls to the remote auth service
// are made without holding it.
type Guard struct {
	mu        sync.Mutex
	state     State
	local     domain.LocalStore
	auth      domain.AuthService
	lockAfter time.Duration
	now       func() time.Time
	logger    logging.Logger

	subMu sync.Mutex
	subs  map[chan State]struct{}
}

// NewGuard returns a guard in LoggedOut; call Start to load the real state.
func NewGuard(local domain.LocalStore, auth domain.AuthService, opts ...Option) *Guard {
	g := &Guard{
		state:     LoggedOut,
		local:     local,
		auth:      auth,
		lockAfter: DefaultLockAfter,
		now:       time.Now,
		logger:    logging.Nop(),
		subs:      make(map[chan State]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the current state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// HasPIN reports whether a local PIN is stored.
func (g *Guard) HasPIN(ctx context.Context) (bool, error) {
	pin, err := g.storedPIN(ctx)
	return pin != "", err
}

// Start derives the initial state from the remote session and the local PIN.
func (g *Guard) Start(ctx context.Context) (State, error) {
	_, ok, err := g.auth.Current(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.setState(LoggedOut)
		return LoggedOut, fmt.Errorf("current session: %w", err)
	}
	if !ok {
		g.setState(LoggedOut)
		return LoggedOut, nil
	}
	return g.afterAuth(ctx)
}

// SignIn authenticates remotely and moves to PIN setup or entry. If another
// transition left LoggedOut while the remote call was in flight, that state
// is kept.
func (g *Guard) SignIn(ctx context.Context, email, password string) (State, error) {
	before := g.State()
	id, err := g.auth.SignIn(ctx, domain.Credentials{Email: email, Password: password})
	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		return g.state, err
	}
	for key, value := range map[string]string{
		domain.KeyIsLoggedIn:     "true",
		domain.KeyLocalAuth:      "true",
		domain.KeyStoredUsername: id.Email,
	} {
		if err := g.local.Set(ctx, key, value); err != nil {
			return g.state, fmt.Errorf("write %s: %w", key, err)
		}
	}
	if g.state != before && g.state != LoggedOut {
		return g.state, nil
	}
	return g.afterAuth(ctx)
}

// CreatePIN stores a new PIN. Allowed while setting up a PIN or when
// changing it from an unlocked session.
func (g *Guard) CreatePIN(ctx context.Context, pin, confirm string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != AwaitingPinSetup && g.state != Unlocked {
		return fmt.Errorf("%w: %s", ErrInvalidState, g.state)
	}
	if !pinPattern.MatchString(pin) {
		return ErrInvalidPIN
	}
	if pin != confirm {
		return ErrPINMismatch
	}
	if err := g.local.Set(ctx, domain.KeyLocalPIN, pin); err != nil {
		return fmt.Errorf("write pin: %w", err)
	}
	return g.unlock(ctx)
}

// EnterPIN unlocks on an exact match. Failed attempts are unlimited.
func (g *Guard) EnterPIN(ctx context.Context, pin string) (State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != AwaitingPinEntry {
		return g.state, fmt.Errorf("%w: %s", ErrInvalidState, g.state)
	}
	stored, err := g.storedPIN(ctx)
	if err != nil {
		return g.state, err
	}
	if stored == "" {
		return g.enterWithoutPIN(ctx)
	}
	if pin != stored {
		return g.state, ErrIncorrectPIN
	}
	if err := g.unlock(ctx); err != nil {
		return g.state, err
	}
	return g.state, nil
}

// Background records when the app left the foreground.
func (g *Guard) Background(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.touch(ctx); err != nil {
		return err
	}
	if err := g.local.Set(ctx, domain.KeyLocked, "true"); err != nil {
		return fmt.Errorf("write %s: %w", domain.KeyLocked, err)
	}
	return nil
}

// Foreground re-locks an unlocked session that spent more than the lock
// period in the background.
func (g *Guard) Foreground(ctx context.Context) (State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Unlocked {
		return g.state, nil
	}
	pin, err := g.storedPIN(ctx)
	if err != nil {
		return g.state, err
	}
	if pin != "" {
		last, ok, err := g.lastActive(ctx)
		if err != nil {
			return g.state, err
		}
		if !ok || g.now().Sub(last) > g.lockAfter {
			g.setState(AwaitingPinEntry)
			return g.state, nil
		}
	}
	if err := g.unlock(ctx); err != nil {
		return g.state, err
	}
	return g.state, nil
}

// Logout clears the PIN and auth markers, moves to LoggedOut and then signs
// out remotely.
func (g *Guard) Logout(ctx context.Context) error {
	g.mu.Lock()
	var errs []error
	for _, key := range []string{
		domain.KeyLocalPIN, domain.KeyLegacyPIN,
		domain.KeyIsLoggedIn, domain.KeyLocalAuth, domain.KeyStoredUsername,
		domain.KeyLocked, domain.KeyLastActiveAt,
	} {
		if err := g.local.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
		}
	}
	g.setState(LoggedOut)
	g.mu.Unlock()
	if err := g.auth.SignOut(ctx); err != nil {
		errs = append(errs, fmt.Errorf("remote sign out: %w", err))
	}
	return errors.Join(errs...)
}

// HandleSession applies a remote session change. Losing the session logs
// out locally but keeps the PIN.
func (g *Guard) HandleSession(ctx context.Context, ev domain.SessionEvent) (State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ev.Identity == nil {
		if g.state != LoggedOut {
			g.logger.Info("remote session ended", "from", g.state)
		}
		g.setState(LoggedOut)
		return g.state, nil
	}
	if g.state != LoggedOut {
		return g.state, nil
	}
	return g.afterAuth(ctx)
}

// Run feeds both observers into the guard until ctx is done or both
// channels are closed. Transition errors are logged.
func (g *Guard) Run(ctx context.Context, sessions <-chan domain.SessionEvent, lifecycle <-chan Lifecycle) {
	for sessions != nil || lifecycle != nil {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sessions:
			if !ok {
				sessions = nil
				continue
			}
			if _, err := g.HandleSession(ctx, ev); err != nil {
				g.logger.Error("session transition failed", "error", err)
			}
		case phase, ok := <-lifecycle:
			if !ok {
				lifecycle = nil
				continue
			}
			var err error
			switch phase {
			case Background:
				err = g.Background(ctx)
			case Foreground:
				_, err = g.Foreground(ctx)
			}
			if err != nil {
				g.logger.Error("lifecycle transition failed", "phase", phase, "error", err)
			}
		}
	}
}

// Subscribe returns a channel carrying the current state and every change,
// closed when ctx is done. A slow reader only sees the latest state.
func (g *Guard) Subscribe(ctx context.Context) <-chan State {
	ch := make(chan State, 1)
	g.mu.Lock()
	g.subMu.Lock()
	g.subs[ch] = struct{}{}
	deliver(ch, g.state)
	g.subMu.Unlock()
	g.mu.Unlock()
	go func() {
		<-ctx.Done()
		g.subMu.Lock()
		delete(g.subs, ch)
		g.subMu.Unlock()
		close(ch)
	}()
	return ch
}

// enterWithoutPIN resolves PIN entry when no PIN is stored: setup if the
// remote session is still live, LoggedOut otherwise. Callers hold mu; it is
// released around the remote check and the state re-checked after.
func (g *Guard) enterWithoutPIN(ctx context.Context) (State, error) {
	g.mu.Unlock()
	_, ok, authErr := g.auth.Current(ctx)
	g.mu.Lock()
	if g.state != AwaitingPinEntry {
		return g.state, nil
	}
	stored, err := g.storedPIN(ctx)
	if err != nil {
		return g.state, err
	}
	if stored != "" {
		return g.state, nil
	}
	if authErr == nil && ok {
		g.setState(AwaitingPinSetup)
	} else {
		g.setState(LoggedOut)
	}
	return g.state, nil
}

// afterAuth picks setup or entry from the presence of a PIN. Callers hold mu.
func (g *Guard) afterAuth(ctx context.Context) (State, error) {
	pin, err := g.storedPIN(ctx)
	if err != nil {
		return g.state, err
	}
	if pin == "" {
		g.setState(AwaitingPinSetup)
	} else {
		g.setState(AwaitingPinEntry)
	}
	return g.state, nil
}

func (g *Guard) unlock(ctx context.Context) error {
	if err := g.touch(ctx); err != nil {
		return err
	}
	if err := g.local.Set(ctx, domain.KeyLocked, "false"); err != nil {
		return fmt.Errorf("write %s: %w", domain.KeyLocked, err)
	}
	g.setState(Unlocked)
	return nil
}

func (g *Guard) touch(ctx context.Context) error {
	ms := strconv.FormatInt(g.now().UnixMilli(), 10)
	if err := g.local.Set(ctx, domain.KeyLastActiveAt, ms); err != nil {
		return fmt.Errorf("write %s: %w", domain.KeyLastActiveAt, err)
	}
	return nil
}

// storedPIN prefers localPin and falls back to the legacy userPIN key.
func (g *Guard) storedPIN(ctx context.Context) (string, error) {
	for _, key := range []string{domain.KeyLocalPIN, domain.KeyLegacyPIN} {
		v, ok, err := g.local.Get(ctx, key)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", key, err)
		}
		if ok && v != "" {
			return v, nil
		}
	}
	return "", nil
}

func (g *Guard) lastActive(ctx context.Context) (time.Time, bool, error) {
	raw, ok, err := g.local.Get(ctx, domain.KeyLastActiveAt)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read %s: %w", domain.KeyLastActiveAt, err)
	}
	if !ok {
		return time.Time{}, false, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		g.logger.Warn("unparseable lastActiveAt, locking", "value", raw)
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (g *Guard) setState(s State) {
	if g.state == s {
		return
	}
	g.state = s
	g.subMu.Lock()
	defer g.subMu.Unlock()
	for ch := range g.subs {
		deliver(ch, s)
	}
}

func deliver(ch chan State, s State) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
