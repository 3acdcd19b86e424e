package core

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExpvarMetricsRecorderPublishes(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), "drain_farmers", true, 1500*time.Microsecond)
	rec.Observe(context.Background(), "drain_farmers", false, time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Second)

	snap := rec.Snapshot()
	if snap.Results["drain_farmers"]["success"] != 1 || snap.Results["drain_farmers"]["error"] != 1 {
		t.Fatalf("unexpected results %+v", snap.Results)
	}
	if snap.DurationsMS["drain_farmers"] != 2.5 {
		t.Fatalf("unexpected duration %v", snap.DurationsMS["drain_farmers"])
	}
	if v := expvar.Get(rec.Name()); v == nil || !strings.Contains(v.String(), "drain_farmers") {
		t.Fatalf("expected expvar export under %s", rec.Name())
	}
}

func TestJSONTracerWritesLines(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "sync_now")
	span.End(errors.New("not connected"))
	entries := tracer.Entries()
	if len(entries) != 1 || entries[0].Status != "error" || entries[0].Error != "not connected" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if !strings.Contains(buf.String(), `"operation":"sync_now"`) {
		t.Fatalf("expected JSON line, got %q", buf.String())
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	rec.Observe(context.Background(), "submit_farmer", true, 20*time.Millisecond)
	rec.Observe(context.Background(), "submit_farmer", false, 20*time.Millisecond)
	if got := testutil.ToFloat64(rec.ops.WithLabelValues("submit_farmer", "success")); got != 1 {
		t.Fatalf("success count = %v", got)
	}
	if n := testutil.CollectAndCount(rec.duration); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestMultiMetricsRecorderFansOut(t *testing.T) {
	a, b := NewExpvarMetricsRecorder(""), NewExpvarMetricsRecorder("")
	MultiMetricsRecorder{a, b}.Observe(context.Background(), "submit_offtake", true, time.Millisecond)
	if a.Snapshot().Results["submit_offtake"]["success"] != 1 || b.Snapshot().Results["submit_offtake"]["success"] != 1 {
		t.Fatalf("both recorders should observe")
	}
}

func TestNewSlogLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(&buf, LogConfig{Level: "warn", Format: "text"})
	logger.Info("hidden")
	logger.Warn("shown", "queue", "localSync")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "queue=localSync") {
		t.Fatalf("unexpected log output %q", out)
	}
}
