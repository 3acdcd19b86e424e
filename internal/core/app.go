// Package core composes the storage backends, sync channels and session guard
// into the App used by the CLI and the HTTP API.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"herdsync/internal/autosync"
	"herdsync/internal/codes"
	"herdsync/internal/connectivity"
	"herdsync/internal/logging"
	"herdsync/internal/queue"
	"herdsync/internal/reports"
	"herdsync/internal/session"
	"herdsync/internal/settings"
	"herdsync/pkg/domain"
)

// ErrOffline is returned by SyncNow when the probe reports no connectivity.
var ErrOffline = errors.New("not connected")

// Deps are the collaborators the App is built from.
type Deps struct {
	Local  domain.LocalStore
	Remote domain.RemoteStore
	Probe  domain.ConnectivityProbe
	Auth   domain.AuthService
}

// Option configures an App.
type Option func(*appOptions)

type appOptions struct {
	logger    logging.Logger
	metrics   MetricsRecorder
	tracer    Tracer
	now       func() time.Time
	lockAfter time.Duration
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger logging.Logger) Option {
	return func(o *appOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics sink for submissions and drains.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(o *appOptions) {
		if rec != nil {
			o.metrics = rec
		}
	}
}

// WithTracer sets the tracer wrapping App operations.
func WithTracer(t Tracer) Option {
	return func(o *appOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(o *appOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLockAfter overrides the session re-lock period.
func WithLockAfter(d time.Duration) Option {
	return func(o *appOptions) {
		if d > 0 {
			o.lockAfter = d
		}
	}
}

// channel bundles one record type's mirror, queue, drainer, router and listener.
type channel[T domain.Record] struct {
	mirror   *queue.Mirror[T]
	drainer  *autosync.Drainer[T]
	router   *autosync.Router[T]
	listener *autosync.Listener[T]
}

func newChannel[T domain.Record](deps Deps, mirrorKey, pendingKey string, o appOptions) channel[T] {
	syncOpts := []autosync.Option{
		autosync.WithLogger(o.logger),
		autosync.WithMetricsRecorder(o.metrics),
		autosync.WithClock(o.now),
	}
	mirror := queue.NewMirror(queue.NewList[T](deps.Local, mirrorKey))
	pending := queue.NewPending(queue.NewList[T](deps.Local, pendingKey), queue.WithLogger(o.logger))
	drainer := autosync.NewDrainer(pending, deps.Remote, syncOpts...)
	return channel[T]{
		mirror:   mirror,
		drainer:  drainer,
		router:   autosync.NewRouter(mirror, drainer, deps.Probe, syncOpts...),
		listener: autosync.NewListener(drainer, syncOpts...),
	}
}

// App is the composition root.
type App struct {
	deps     Deps
	opts     appOptions
	farmers  channel[domain.FarmerRecord]
	offtakes channel[domain.OfftakeRecord]
	codes    *codes.Generator
	settings *settings.Store
	guard    *session.Guard

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApp wires an App. Every Deps field is required.
func NewApp(deps Deps, opts ...Option) (*App, error) {
	if deps.Local == nil || deps.Remote == nil || deps.Probe == nil || deps.Auth == nil {
		return nil, errors.New("app: local, remote, probe and auth are required")
	}
	o := appOptions{
		logger:    logging.Nop(),
		metrics:   noopMetrics{},
		tracer:    noopTracer{},
		now:       time.Now,
		lockAfter: session.DefaultLockAfter,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &App{
		deps:     deps,
		opts:     o,
		farmers:  newChannel[domain.FarmerRecord](deps, domain.KeyFarmers, domain.KeyPendingFarmers, o),
		offtakes: newChannel[domain.OfftakeRecord](deps, domain.KeyOfftakes, domain.KeyPendingOfftakes, o),
		codes:    codes.NewGenerator(deps.Local),
		settings: settings.New(deps.Local),
		guard: session.NewGuard(deps.Local, deps.Auth,
			session.WithLogger(o.logger),
			session.WithClock(o.now),
			session.WithLockAfter(o.lockAfter)),
	}, nil
}

// Guard returns the session guard.
func (a *App) Guard() *session.Guard { return a.guard }

// Settings returns the county settings store.
func (a *App) Settings() *settings.Store { return a.settings }

// SubmitFarmer registers a farmer. Blank county, registration date and
// vaccination date are filled from settings, today and "N/A".
func (a *App) SubmitFarmer(ctx context.Context, rec domain.FarmerRecord) (out autosync.Outcome, err error) {
	ctx, span := a.opts.tracer.Start(ctx, "submit_farmer")
	defer func() { span.End(err) }()

	if strings.TrimSpace(rec.County) == "" {
		county, err := a.settings.County(ctx)
		if err != nil {
			return autosync.Outcome{}, fmt.Errorf("%w: %w", autosync.ErrLocalStore, err)
		}
		rec.County = county
	}
	if rec.RegistrationDate == "" {
		rec.RegistrationDate = domain.FormatDate(a.opts.now())
	}
	if strings.TrimSpace(rec.VaccinationDate) == "" {
		rec.VaccinationDate = domain.NotApplicable
	}
	return a.farmers.router.Submit(ctx, rec)
}

// OfftakeRequest is an offtake as entered on the form: live weights only.
type OfftakeRequest struct {
	Name        string        `json:"name"`
	Gender      domain.Gender `json:"gender"`
	IDNumber    string        `json:"idNumber"`
	Phone       string        `json:"phone"`
	Date        string        `json:"date"`
	LiveWeights []float64     `json:"liveWeights"`
}

// OfftakeResult is a submitted offtake and where it went.
type OfftakeResult struct {
	Record  domain.OfftakeRecord `json:"record"`
	Outcome autosync.Outcome     `json:"outcome"`
}

// SubmitOfftake prices the weights, stamps the selected county and a fresh
// offtake code, and routes the record.
func (a *App) SubmitOfftake(ctx context.Context, req OfftakeRequest) (res OfftakeResult, err error) {
	ctx, span := a.opts.tracer.Start(ctx, "submit_offtake")
	defer func() { span.End(err) }()

	county, err := a.settings.County(ctx)
	if err != nil {
		return OfftakeResult{}, fmt.Errorf("%w: %w", autosync.ErrLocalStore, err)
	}
	if county == "" {
		return OfftakeResult{}, codes.ErrNoCounty
	}
	goats := make([]domain.GoatWeight, 0, len(req.LiveWeights))
	var problems []domain.FieldProblem
	for i, live := range req.LiveWeights {
		g, err := domain.NewGoatWeight(live)
		if err != nil {
			problems = append(problems, domain.FieldProblem{Field: fmt.Sprintf("liveWeights[%d]", i), Message: err.Error()})
			continue
		}
		goats = append(goats, g)
	}
	if len(problems) > 0 {
		return OfftakeResult{}, &domain.ValidationError{Fields: problems}
	}
	date := req.Date
	if date == "" {
		date = domain.FormatDate(a.opts.now())
	}
	rec := domain.NewOfftakeRecord(domain.OfftakeRecord{
		Name:     req.Name,
		Gender:   req.Gender,
		IDNumber: req.IDNumber,
		Phone:    req.Phone,
		Date:     date,
		County:   county,
	}, goats)
	if err := domain.Validate(rec); err != nil {
		return OfftakeResult{}, err
	}
	code, err := a.codes.Next(ctx, county)
	if err != nil {
		return OfftakeResult{}, fmt.Errorf("%w: %w", autosync.ErrLocalStore, err)
	}
	rec.Code = code
	out, err := a.offtakes.router.Submit(ctx, rec)
	if err != nil {
		return OfftakeResult{}, err
	}
	return OfftakeResult{Record: rec, Outcome: out}, nil
}

// PassResult is one drainer's part of a SyncNow call.
type PassResult struct {
	Ran    bool              `json:"ran"`
	Report queue.DrainReport `json:"report"`
}

// SyncReport is the result of SyncNow.
type SyncReport struct {
	Farmers  PassResult `json:"farmers"`
	Offtakes PassResult `json:"offtakes"`
}

// SyncNow runs one drain pass per record type if connected. Drains are
// skipped when offline so the queues are not cleared by failing pushes.
func (a *App) SyncNow(ctx context.Context) (rep SyncReport, err error) {
	ctx, span := a.opts.tracer.Start(ctx, "sync_now")
	defer func() { span.End(err) }()

	connected, probeErr := a.deps.Probe.Connected(ctx)
	if probeErr != nil || !connected {
		if probeErr != nil {
			a.opts.logger.Warn("connectivity probe failed", "error", probeErr)
		}
		return SyncReport{}, ErrOffline
	}
	var errs []error
	rep.Farmers.Report, rep.Farmers.Ran, err = a.farmers.drainer.TryDrain(ctx)
	errs = append(errs, err)
	rep.Offtakes.Report, rep.Offtakes.Ran, err = a.offtakes.drainer.TryDrain(ctx)
	errs = append(errs, err)
	return rep, errors.Join(errs...)
}

// PendingCounts is the number of queued records per type.
type PendingCounts struct {
	Farmers  int `json:"farmers"`
	Offtakes int `json:"offtakes"`
}

// PendingCounts reports both queue lengths.
func (a *App) PendingCounts(ctx context.Context) (PendingCounts, error) {
	f, err := a.farmers.drainer.Pending().Len(ctx)
	if err != nil {
		return PendingCounts{}, err
	}
	o, err := a.offtakes.drainer.Pending().Len(ctx)
	if err != nil {
		return PendingCounts{}, err
	}
	return PendingCounts{Farmers: f, Offtakes: o}, nil
}

// Farmers returns the farmer Local Mirror.
func (a *App) Farmers(ctx context.Context) ([]domain.FarmerRecord, error) {
	return a.farmers.mirror.All(ctx)
}

// Offtakes returns the offtake Local Mirror.
func (a *App) Offtakes(ctx context.Context) ([]domain.OfftakeRecord, error) {
	return a.offtakes.mirror.All(ctx)
}

// ClearOfftakes removes every saved offtake and any offtakes still queued.
func (a *App) ClearOfftakes(ctx context.Context) error {
	if err := a.offtakes.mirror.Clear(ctx); err != nil {
		return err
	}
	return a.offtakes.drainer.Pending().Clear(ctx)
}

// Report bundles both summaries.
type Report struct {
	Farmers  reports.FarmerSummary  `json:"farmers"`
	Offtakes reports.OfftakeSummary `json:"offtakes"`
}

// Reports summarises the Local Mirrors.
func (a *App) Reports(ctx context.Context) (Report, error) {
	farmers, err := a.Farmers(ctx)
	if err != nil {
		return Report{}, err
	}
	offtakes, err := a.Offtakes(ctx)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Farmers:  reports.SummarizeFarmers(farmers),
		Offtakes: reports.SummarizeOfftakes(offtakes),
	}, nil
}

// Start launches both auto-sync listeners on events and the session guard
// on the auth subscription plus lifecycle. Stop ends them.
func (a *App) Start(ctx context.Context, events <-chan domain.ConnectivityEvent, lifecycle <-chan session.Lifecycle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return errors.New("app already started")
	}
	if _, err := a.guard.Start(ctx); err != nil {
		a.opts.logger.Warn("initial session check failed", "error", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	outs := connectivity.Fanout(runCtx, events, 2)
	sessions := a.deps.Auth.Subscribe(runCtx)
	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		a.farmers.listener.Run(runCtx, outs[0])
	}()
	go func() {
		defer a.wg.Done()
		a.offtakes.listener.Run(runCtx, outs[1])
	}()
	go func() {
		defer a.wg.Done()
		a.guard.Run(runCtx, sessions, lifecycle)
	}()
	a.opts.logger.Info("auto-sync started")
	return nil
}

// Stop cancels the background loops and waits for in-flight drains.
func (a *App) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	a.wg.Wait()
	a.opts.logger.Info("auto-sync stopped")
}
