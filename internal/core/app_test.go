package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"herdsync/internal/autosync"
	authmemory "herdsync/internal/auth/memory"
	"herdsync/internal/codes"
	"herdsync/internal/connectivity"
	kvmemory "herdsync/internal/infra/kv/memory"
	remotememory "herdsync/internal/infra/remote/memory"
	"herdsync/internal/session"
	"herdsync/pkg/domain"
)

type harness struct {
	app    *App
	local  *kvmemory.Store
	remote *remotememory.Store
	net    *connectivity.Switch
	auth   *authmemory.Service
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		local:  kvmemory.NewStore(),
		remote: remotememory.NewStore(),
		net:    connectivity.NewSwitch(false),
		auth:   authmemory.New(map[string]string{"officer@example.org": "secret"}),
	}
	clock := func() time.Time { return time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC) }
	app, err := NewApp(Deps{Local: h.local, Remote: h.remote, Probe: h.net, Auth: h.auth}, append([]Option{WithClock(clock)}, opts...)...)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	h.app = app
	return h
}

func sampleFarmer() domain.FarmerRecord {
	return domain.FarmerRecord{
		Name: "Nasieku", Location: "Suswa", Gender: domain.GenderFemale, IDNumber: "445566",
		Phone: "0700111222", Goats: 5, AgeGroup: "7-12", VaccineType: "CCPP",
	}
}

func sampleOfftake() OfftakeRequest {
	return OfftakeRequest{
		Name: "Sankale", Gender: domain.GenderMale, IDNumber: "778899", Phone: "0700333444",
		LiveWeights: []float64{16, 21},
	}
}

func TestNewAppRequiresDeps(t *testing.T) {
	if _, err := NewApp(Deps{}); err == nil {
		t.Fatalf("expected error for missing deps")
	}
}

func TestSubmitFarmerFillsDefaults(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_ = h.app.Settings().SetCounty(ctx, "Kajiado")
	out, err := h.app.SubmitFarmer(ctx, sampleFarmer())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Delivered != autosync.DeliveredQueued {
		t.Fatalf("offline submit should queue, got %+v", out)
	}
	farmers, _ := h.app.Farmers(ctx)
	if len(farmers) != 1 {
		t.Fatalf("expected mirrored farmer")
	}
	f := farmers[0]
	if f.County != "Kajiado" || f.RegistrationDate != "16 Oct 2026" || f.VaccinationDate != domain.NotApplicable {
		t.Fatalf("defaults not applied: %+v", f)
	}
}

func TestSubmitOfftakeRequiresCounty(t *testing.T) {
	h := newHarness(t)
	if _, err := h.app.SubmitOfftake(context.Background(), sampleOfftake()); !errors.Is(err, codes.ErrNoCounty) {
		t.Fatalf("expected ErrNoCounty, got %v", err)
	}
}

func TestSubmitOfftakePricesAndCodes(t *testing.T) {
	ctx := context.Background()
	tracer := NewJSONTracer(nil)
	metrics := NewExpvarMetricsRecorder("")
	h := newHarness(t, WithTracer(tracer), WithMetricsRecorder(metrics))
	_ = h.app.Settings().SetCounty(ctx, "Turkana")
	_ = h.local.Set(ctx, domain.OfftakeCounterKey("TUR"), "7")
	h.net.Set(true)

	res, err := h.app.SubmitOfftake(ctx, sampleOfftake())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Record.Code != "TUR0008" || res.Record.TotalGoats != 2 || res.Record.TotalPrice != 9300 {
		t.Fatalf("unexpected record %+v", res.Record)
	}
	if res.Outcome.Delivered != autosync.DeliveredRemote {
		t.Fatalf("expected remote delivery, got %+v", res.Outcome)
	}
	if h.remote.Len(domain.CollectionOfftakes) != 1 {
		t.Fatalf("expected one remote offtake")
	}
	if len(tracer.Entries()) != 1 || tracer.Entries()[0].Operation != "submit_offtake" {
		t.Fatalf("unexpected spans %+v", tracer.Entries())
	}
	if got := metrics.Snapshot().Results["submit_offtake"]["success"]; got != 1 {
		t.Fatalf("expected submit_offtake success metric, got %d", got)
	}
}

func TestSubmitOfftakeRejectsWeightsOutsideRange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_ = h.app.Settings().SetCounty(ctx, "Narok")
	req := sampleOfftake()
	req.LiveWeights = []float64{10}
	_, err := h.app.SubmitOfftake(ctx, req)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Fields[0].Field != "liveWeights[0]" {
		t.Fatalf("expected weight validation error, got %v", err)
	}
	if v, ok, _ := h.local.Get(ctx, domain.OfftakeCounterKey("NAR")); ok {
		t.Fatalf("invalid offtake must not consume a code, counter=%q", v)
	}
}

func TestOfflineThenReconnectDrainsWithoutDuplicatingMirror(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_ = h.app.Settings().SetCounty(ctx, "Isiolo")
	if _, err := h.app.SubmitOfftake(ctx, sampleOfftake()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if c, _ := h.app.PendingCounts(ctx); c.Offtakes != 1 {
		t.Fatalf("expected queued offtake, got %+v", c)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := h.app.Start(runCtx, h.net.Subscribe(runCtx), nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.net.Set(true)
	deadline := time.Now().Add(2 * time.Second)
	for h.remote.Len(domain.CollectionOfftakes) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.app.Stop()

	if h.remote.Len(domain.CollectionOfftakes) != 1 {
		t.Fatalf("expected drained offtake on reconnect")
	}
	if c, _ := h.app.PendingCounts(ctx); c.Offtakes != 0 {
		t.Fatalf("queue should be empty, got %+v", c)
	}
	if all, _ := h.app.Offtakes(ctx); len(all) != 1 {
		t.Fatalf("mirror should hold exactly the original record, got %d", len(all))
	}
}

func TestSyncNowSkipsWhenOffline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if err := h.app.Settings().SetCounty(ctx, "Samburu"); err != nil {
		t.Fatalf("set county: %v", err)
	}
	out, err := h.app.SubmitFarmer(ctx, sampleFarmer())
	if err != nil || out.Delivered != autosync.DeliveredQueued {
		t.Fatalf("expected queued farmer, got %+v %v", out, err)
	}
	if _, err := h.app.SyncNow(ctx); !errors.Is(err, ErrOffline) {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
	if c, _ := h.app.PendingCounts(ctx); c.Farmers != 1 {
		t.Fatalf("offline sync must keep the queue")
	}
	h.net.Set(true)
	rep, err := h.app.SyncNow(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !rep.Farmers.Ran || rep.Farmers.Report.Attempted != 1 || rep.Offtakes.Report.Attempted != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestClearOfftakesClearsMirrorAndQueue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if err := h.app.Settings().SetCounty(ctx, "Marsabit"); err != nil {
		t.Fatalf("set county: %v", err)
	}
	if _, err := h.app.SubmitOfftake(ctx, sampleOfftake()); err != nil {
		t.Fatalf("submit offtake: %v", err)
	}
	if _, err := h.app.SubmitFarmer(ctx, sampleFarmer()); err != nil {
		t.Fatalf("submit farmer: %v", err)
	}
	if c, _ := h.app.PendingCounts(ctx); c.Offtakes != 1 {
		t.Fatalf("expected one queued offtake before clearing, got %+v", c)
	}
	if err := h.app.ClearOfftakes(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if all, _ := h.app.Offtakes(ctx); len(all) != 0 {
		t.Fatalf("offtake mirror should be empty")
	}
	c, _ := h.app.PendingCounts(ctx)
	if c.Offtakes != 0 || c.Farmers != 1 {
		t.Fatalf("only offtakes should be cleared, got %+v", c)
	}
	rep, _ := h.app.Reports(ctx)
	if rep.Farmers.Total != 1 || rep.Offtakes.Total != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestConcurrentOfflineSubmissionsAreAllKept(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if err := h.app.Settings().SetCounty(ctx, "Narok"); err != nil {
		t.Fatalf("set county: %v", err)
	}
	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := sampleFarmer()
			rec.IDNumber = fmt.Sprintf("%06d", i)
			if _, err := h.app.SubmitFarmer(ctx, rec); err != nil {
				t.Errorf("submit %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()
	if all, _ := h.app.Farmers(ctx); len(all) != n {
		t.Fatalf("mirror holds %d of %d farmers", len(all), n)
	}
	if c, _ := h.app.PendingCounts(ctx); c.Farmers != n {
		t.Fatalf("queue holds %d of %d farmers", c.Farmers, n)
	}
}

func TestGuardIsWired(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WithLockAfter(time.Minute))
	if st, err := h.app.Guard().SignIn(ctx, "officer@example.org", "secret"); err != nil || st != session.AwaitingPinSetup {
		t.Fatalf("sign in: %s %v", st, err)
	}
}

func TestStartTwiceFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t)
	if err := h.app.Start(ctx, nil, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer h.app.Stop()
	if err := h.app.Start(ctx, nil, nil); err == nil {
		t.Fatalf("expected second start to fail")
	}
}
