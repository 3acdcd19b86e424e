package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"herdsync/internal/infra/remote/postgres/testutil"
	"herdsync/pkg/domain"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, conn
}

func TestNewStoreCreatesRecordsTable(t *testing.T) {
	_, conn := openStub(t)
	if len(conn.Execs) == 0 || !strings.Contains(conn.Execs[0], "CREATE TABLE IF NOT EXISTS records") {
		t.Fatalf("expected records DDL, got %v", conn.Execs)
	}
}

func TestPushInsertsAndRecordsFiltersByCollection(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)
	store.now = func() time.Time { return time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC) }

	id, err := store.Push(ctx, domain.CollectionOfftakes, json.RawMessage(`{"code":"TUR0001"}`))
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := store.Push(ctx, domain.CollectionFarmers, json.RawMessage(`{"name":"x"}`)); err != nil {
		t.Fatalf("push farmer: %v", err)
	}
	if len(conn.Tables["records"]) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(conn.Tables["records"]))
	}
	rows, err := store.Records(ctx, domain.CollectionOfftakes)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != id || string(rows[0].Payload) != `{"code":"TUR0001"}` {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if !rows[0].CreatedAt.Equal(store.now()) {
		t.Fatalf("unexpected created_at %v", rows[0].CreatedAt)
	}
}

func TestPushSurfacesExecErrors(t *testing.T) {
	store, conn := openStub(t)
	conn.FailExec = true
	if _, err := store.Push(context.Background(), domain.CollectionFarmers, json.RawMessage(`{}`)); err == nil {
		t.Fatalf("expected insert error")
	}
}

func TestNewStoreFailsOnPing(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://ignored"); err == nil {
		t.Fatalf("expected ping failure")
	}
}
