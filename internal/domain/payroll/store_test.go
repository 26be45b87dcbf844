package payroll

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	cryptoutil "statpay/internal/platform/crypto"
	"statpay/internal/platform/db"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	_, file, _, _ := runtime.Caller(0)
	migrations := filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
	if err := db.Migrate(ctx, pool, migrations, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	master, err := cryptoutil.New(strings.Repeat("k!", 16))
	if err != nil {
		t.Fatalf("crypto: %v", err)
	}
	sealer, err := master.ForPurpose(cryptoutil.PurposePayslipSnapshot)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	return NewStore(pool, sealer)
}

func TestStoreRecordsAndSnapshots(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	record := sampleRecord()
	record.EmployeeID = fmt.Sprintf("emp-%d", time.Now().UnixNano())
	record.EmployerTaxID = "M" + uuid.NewString()[:8]
	record.LineItems = NormalizeLineItems(record.LineItems)
	if err := store.UpsertRecord(ctx, record); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	record.WorkedDays = 22
	if err := store.UpsertRecord(ctx, record); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := store.GetRecord(ctx, record.EmployeeID, 3, 2024)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.WorkedDays != 22 || !got.BaseSalary.Equal(record.BaseSalary) || len(got.LineItems) != 1 {
		t.Fatalf("expected upserted record, got %+v", got)
	}

	list, err := store.ListRecords(ctx, record.EmployerTaxID, 3, 2024)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one record, got %d (%v)", len(list), err)
	}

	if _, err := store.GetRecord(ctx, record.EmployeeID, 4, 2024); err == nil {
		t.Fatal("expected not found")
	}

	params := DefaultFiscalParameters()
	snapshot, err := NewSnapshot(got, ComputeForEmployee(got, params), params.Version, time.Now())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := store.SaveSnapshot(ctx, snapshot); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	latest, err := store.LatestSnapshot(ctx, record.EmployeeID)
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if _, err := ResolveSnapshot(latest, params); err != nil {
		t.Fatalf("expected stored snapshot to validate, got %v", err)
	}

	older := record
	older.PeriodMonth = 1
	if err := store.UpsertRecord(ctx, older); err != nil {
		t.Fatalf("upsert older: %v", err)
	}
	newest, err := store.LatestRecord(ctx, record.EmployeeID)
	if err != nil {
		t.Fatalf("latest record: %v", err)
	}
	if newest.PeriodMonth != 3 || newest.PeriodYear != 2024 {
		t.Fatalf("expected 03/2024, got %02d/%d", newest.PeriodMonth, newest.PeriodYear)
	}
	if _, err := store.LatestRecord(ctx, "missing-"+uuid.NewString()); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}

	if _, err := store.DB.Exec(ctx, `
    INSERT INTO payslip_snapshots (id, employee_id, period_month, period_year, params_version, checksum, payload, captured_at)
    VALUES ($1,$2,3,2024,'x','x',$3,$4)
  `, uuid.NewString(), record.EmployeeID, []byte("not sealed"), time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("insert corrupt snapshot: %v", err)
	}
	if _, err := store.LatestSnapshot(ctx, record.EmployeeID); !errors.Is(err, ErrSnapshotInvalid) {
		t.Fatalf("expected ErrSnapshotInvalid, got %v", err)
	}
}

func TestStoreDeclarationRuns(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	params := DefaultFiscalParameters()
	run := RunSummary{
		ID:            uuid.NewString(),
		EmployerTaxID: "M" + uuid.NewString()[:8],
		PeriodMonth:   3,
		PeriodYear:    2024,
		State:         RunStatePopulated,
		ParamsVersion: params.Version,
		CreatedAt:     time.Now().UTC(),
	}
	if err := store.CreateRun(ctx, run, params); err != nil {
		t.Fatalf("create run: %v", err)
	}

	batch := ComputeBatch(batchRecords(), params)
	if err := store.SaveRunEntries(ctx, run.ID, batch); err != nil {
		t.Fatalf("save entries: %v", err)
	}

	got, stored, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if got.State != RunStateComputed {
		t.Fatalf("expected computed, got %s", got.State)
	}
	if len(stored.Entries) != len(batch.Entries) || stored.Totals != batch.Totals {
		t.Fatalf("expected stored batch to match, got %+v", stored.Totals)
	}
	if stored.Entries[2].Err == nil || stored.Entries[2].Result != nil {
		t.Fatalf("expected failed entry to survive, got %+v", stored.Entries[2])
	}

	if err := store.UpdateRunState(ctx, run.ID, RunStateExported); err != nil {
		t.Fatalf("update state: %v", err)
	}
	runs, err := store.ListRuns(ctx, run.EmployerTaxID, 10, 0)
	if err != nil || len(runs) != 1 || runs[0].State != RunStateExported {
		t.Fatalf("expected one exported run, got %+v (%v)", runs, err)
	}

	if _, _, err := store.GetRun(ctx, "not-a-uuid"); err == nil {
		t.Fatal("expected not found for malformed id")
	}
}
