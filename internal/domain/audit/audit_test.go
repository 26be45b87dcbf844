package audit

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"statpay/internal/platform/db"
	"statpay/internal/requestctx"
)

func TestBuildBaseQuery(t *testing.T) {
	query, args := buildBaseQuery("SELECT COUNT(1)", Filter{Action: "declaration.exported", EmployerTaxID: "M1"})
	want := "SELECT COUNT(1) FROM audit_events WHERE 1=1 AND action = $1 AND employer_tax_id = $2"
	if query != want {
		t.Fatalf("expected %q, got %q", want, query)
	}
	if len(args) != 2 || args[0] != "declaration.exported" || args[1] != "M1" {
		t.Fatalf("unexpected args %v", args)
	}

	query, args = buildBaseQuery("SELECT id", Filter{})
	if query != "SELECT id FROM audit_events WHERE 1=1" || len(args) != 0 {
		t.Fatalf("expected unfiltered query, got %q %v", query, args)
	}
}

func TestRecordAndList(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	_, file, _, _ := runtime.Caller(0)
	if err := db.Migrate(ctx, pool, filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations"), zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	svc := New(pool)
	runID := uuid.NewString()
	reqCtx := requestctx.WithRequestID(ctx, "req-audit")
	if err := svc.Record(reqCtx, "declaration.computed", "declaration_run", runID, "M1", map[string]int{"employeeCount": 3}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.Record(reqCtx, "declaration.exported", "declaration_run", runID, "M1", nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	filter := Filter{EntityID: runID}
	total, err := svc.Count(ctx, filter)
	if err != nil || total != 2 {
		t.Fatalf("expected 2 events, got %d (%v)", total, err)
	}
	events, err := svc.List(ctx, filter, true, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 || events[0].RequestID != "req-audit" {
		t.Fatalf("unexpected events %+v", events)
	}
}
