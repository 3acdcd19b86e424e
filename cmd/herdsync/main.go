// Command herdsync runs the livestock field-data service: the HTTP API with
// background auto-sync, or one-shot status and sync commands.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"herdsync/internal/connectivity"
	"herdsync/internal/core"
	"herdsync/internal/httpapi"
	"herdsync/internal/logging"
)

const usage = `usage: herdsync <serve|status|sync> [-config file] [-addr host:port] [-trace]`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	cmd := args[0]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML config file")
	addr := fs.String("addr", "", "HTTP listen address (serve only)")
	trace := fs.Bool("trace", false, "write operation spans to stderr as JSON lines")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	logger := core.NewSlogLogger(stderr, cfg.Log)

	var tracerOut io.Writer
	if *trace {
		tracerOut = stderr
	}
	env, err := open(ctx, cfg, logger, tracerOut)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer env.close(logger)

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, env, logger)
	case "status":
		err = status(ctx, env, stdout)
	case "sync":
		err = syncOnce(ctx, env, stdout)
	default:
		fmt.Fprintln(stderr, usage)
		return 2
	}
	if err != nil {
		logger.Error(cmd+" failed", "error", err)
		return 1
	}
	return 0
}

type environment struct {
	app      *core.App
	probe    *connectivity.HTTPProbe
	registry *prometheus.Registry
	closers  []io.Closer
}

func open(ctx context.Context, cfg core.Config, logger logging.Logger, traceOut io.Writer) (*environment, error) {
	env := &environment{registry: prometheus.NewRegistry()}
	local, localCloser, err := core.OpenLocalStore(cfg.Local)
	if err != nil {
		return nil, fmt.Errorf("local store: %w", err)
	}
	env.closers = append(env.closers, localCloser)
	auth, err := core.OpenAuthService(cfg.Auth)
	if err != nil {
		env.close(logger)
		return nil, fmt.Errorf("auth: %w", err)
	}
	remote, remoteCloser, err := core.OpenRemoteStore(ctx, cfg.Remote, auth)
	if err != nil {
		env.close(logger)
		return nil, fmt.Errorf("remote store: %w", err)
	}
	env.closers = append(env.closers, remoteCloser)

	prom, err := core.NewPrometheusMetricsRecorder(env.registry)
	if err != nil {
		env.close(logger)
		return nil, err
	}
	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetricsRecorder(core.MultiMetricsRecorder{prom, core.NewExpvarMetricsRecorder("")}),
		core.WithLockAfter(cfg.LockAfter),
	}
	if traceOut != nil {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(traceOut)))
	}
	env.probe = core.OpenProbe(cfg.Probe)
	env.app, err = core.NewApp(core.Deps{Local: local, Remote: remote, Probe: env.probe, Auth: auth}, opts...)
	if err != nil {
		env.close(logger)
		return nil, err
	}
	return env, nil
}

func (e *environment) close(logger logging.Logger) {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
	e.closers = nil
}

func serve(ctx context.Context, cfg core.Config, env *environment, logger logging.Logger) error {
	watcher := connectivity.NewWatcher(env.probe, cfg.Probe.Interval)
	if err := env.app.Start(ctx, watcher.Run(ctx), nil); err != nil {
		return err
	}
	defer env.app.Stop()

	router := httpapi.NewRouter(env.app,
		httpapi.WithLogger(logger),
		httpapi.WithMetricsHandler(promhttp.HandlerFor(env.registry, promhttp.HandlerOpts{})))
	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTP.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func status(ctx context.Context, env *environment, out io.Writer) error {
	counts, err := env.app.PendingCounts(ctx)
	if err != nil {
		return err
	}
	return writeJSON(out, counts)
}

func syncOnce(ctx context.Context, env *environment, out io.Writer) error {
	rep, err := env.app.SyncNow(ctx)
	if errors.Is(err, core.ErrOffline) {
		return err
	}
	if werr := writeJSON(out, rep); werr != nil {
		return werr
	}
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
