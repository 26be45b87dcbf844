package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	cryptoutil "statpay/internal/platform/crypto"
)

type Store struct {
	DB     *pgxpool.Pool
	crypto *cryptoutil.Service
}

// NewStore seals snapshot payloads with crypto when it is configured.
func NewStore(db *pgxpool.Pool, crypto *cryptoutil.Service) *Store {
	return &Store{DB: db, crypto: crypto}
}

func (s *Store) UpsertRecord(ctx context.Context, record CompensationRecord) error {
	items, err := json.Marshal(record.LineItems)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO compensation_records (
      id, employee_id, employer_tax_id, employee_tax_id, period_month, period_year,
      base_salary, transport_allowance, housing_allowance, worked_days, risk_category, line_items
    )
    VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8::numeric,$9::numeric,$10,$11,$12)
    ON CONFLICT (employee_id, period_year, period_month) DO UPDATE SET
      employer_tax_id = EXCLUDED.employer_tax_id,
      employee_tax_id = EXCLUDED.employee_tax_id,
      base_salary = EXCLUDED.base_salary,
      transport_allowance = EXCLUDED.transport_allowance,
      housing_allowance = EXCLUDED.housing_allowance,
      worked_days = EXCLUDED.worked_days,
      risk_category = EXCLUDED.risk_category,
      line_items = EXCLUDED.line_items,
      updated_at = now()
  `, uuid.NewString(), record.EmployeeID, record.EmployerTaxID, record.EmployeeTaxID, record.PeriodMonth, record.PeriodYear,
		record.BaseSalary.String(), record.TransportAllowance.String(), record.HousingAllowance.String(),
		record.WorkedDays, record.RiskCategory, items)
	return err
}

const recordColumns = `
      employee_id, employer_tax_id, employee_tax_id, period_month, period_year,
      base_salary::text, transport_allowance::text, housing_allowance::text,
      worked_days, risk_category, line_items`

func (s *Store) GetRecord(ctx context.Context, employeeID string, month, year int) (CompensationRecord, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT`+recordColumns+`
    FROM compensation_records
    WHERE employee_id = $1 AND period_month = $2 AND period_year = $3
  `, employeeID, month, year)
	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return CompensationRecord{}, fmt.Errorf("%w: %s %02d/%d", ErrRecordNotFound, employeeID, month, year)
	}
	return record, err
}

// LatestRecord returns the employee's record for the most recent period.
func (s *Store) LatestRecord(ctx context.Context, employeeID string) (CompensationRecord, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT`+recordColumns+`
    FROM compensation_records
    WHERE employee_id = $1
    ORDER BY period_year DESC, period_month DESC
    LIMIT 1
  `, employeeID)
	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return CompensationRecord{}, fmt.Errorf("%w: %s", ErrRecordNotFound, employeeID)
	}
	return record, err
}

func (s *Store) ListRecords(ctx context.Context, employerTaxID string, month, year int) ([]CompensationRecord, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT`+recordColumns+`
    FROM compensation_records
    WHERE employer_tax_id = $1 AND period_month = $2 AND period_year = $3
    ORDER BY employee_id
  `, employerTaxID, month, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CompensationRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanRecord(row pgx.Row) (CompensationRecord, error) {
	var record CompensationRecord
	var base, transport, housing string
	var items []byte
	if err := row.Scan(&record.EmployeeID, &record.EmployerTaxID, &record.EmployeeTaxID, &record.PeriodMonth, &record.PeriodYear,
		&base, &transport, &housing, &record.WorkedDays, &record.RiskCategory, &items); err != nil {
		return CompensationRecord{}, err
	}
	var err error
	if record.BaseSalary, err = decimal.NewFromString(base); err != nil {
		return CompensationRecord{}, err
	}
	if record.TransportAllowance, err = decimal.NewFromString(transport); err != nil {
		return CompensationRecord{}, err
	}
	if record.HousingAllowance, err = decimal.NewFromString(housing); err != nil {
		return CompensationRecord{}, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &record.LineItems); err != nil {
			return CompensationRecord{}, err
		}
	}
	return record, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, snapshot PayslipSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	sealed, err := s.crypto.Encrypt(payload)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO payslip_snapshots (id, employee_id, period_month, period_year, params_version, checksum, payload, captured_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
  `, uuid.NewString(), snapshot.EmployeeID, snapshot.PeriodMonth, snapshot.PeriodYear,
		snapshot.ParamsVersion, snapshot.Checksum, sealed, snapshot.CapturedAt)
	return err
}

func (s *Store) LatestSnapshot(ctx context.Context, employeeID string) (PayslipSnapshot, error) {
	var sealed []byte
	err := s.DB.QueryRow(ctx, `
    SELECT payload
    FROM payslip_snapshots
    WHERE employee_id = $1
    ORDER BY captured_at DESC
    LIMIT 1
  `, employeeID).Scan(&sealed)
	if errors.Is(err, pgx.ErrNoRows) {
		return PayslipSnapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, employeeID)
	}
	if err != nil {
		return PayslipSnapshot{}, err
	}
	payload, err := s.crypto.Decrypt(sealed)
	if err != nil {
		return PayslipSnapshot{}, fmt.Errorf("%w: %v", ErrSnapshotInvalid, err)
	}
	var snapshot PayslipSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return PayslipSnapshot{}, fmt.Errorf("%w: %v", ErrSnapshotInvalid, err)
	}
	return snapshot, nil
}

func (s *Store) CreateRun(ctx context.Context, run RunSummary, params FiscalParameters) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO declaration_runs (id, employer_tax_id, period_month, period_year, state, params_version, params, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
  `, run.ID, run.EmployerTaxID, run.PeriodMonth, run.PeriodYear, run.State, run.ParamsVersion, paramsJSON, run.CreatedAt)
	return err
}

// SaveRunEntries replaces the entries of a run and marks it computed in one
// transaction.
func (s *Store) SaveRunEntries(ctx context.Context, runID string, batch DeclarationBatch) error {
	totals, err := json.Marshal(batch.Totals)
	if err != nil {
		return err
	}
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "DELETE FROM declaration_entries WHERE run_id = $1", runID); err != nil {
		return err
	}
	for i, entry := range batch.Entries {
		var result []byte
		if entry.Result != nil {
			if result, err = json.Marshal(entry.Result); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `
      INSERT INTO declaration_entries (run_id, position, employee_id, employee_tax_id, declaration_id, result, error)
      VALUES ($1,$2,$3,$4,$5,$6,$7)
    `, runID, i, entry.EmployeeID, entry.EmployeeTaxID, entry.DeclarationID, result, entry.Error); err != nil {
			return err
		}
	}
	tag, err := tx.Exec(ctx, `
    UPDATE declaration_runs
    SET state = $2, totals = $3, updated_at = now()
    WHERE id = $1
  `, runID, RunStateComputed, totals)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return tx.Commit(ctx)
}

func (s *Store) UpdateRunState(ctx context.Context, runID, state string) error {
	if _, err := uuid.Parse(runID); err != nil {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	tag, err := s.DB.Exec(ctx, "UPDATE declaration_runs SET state = $2, updated_at = now() WHERE id = $1", runID, state)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (RunSummary, DeclarationBatch, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return RunSummary{}, DeclarationBatch{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	var run RunSummary
	err := s.DB.QueryRow(ctx, `
    SELECT id::text, employer_tax_id, period_month, period_year, state, params_version, created_at
    FROM declaration_runs
    WHERE id = $1
  `, runID).Scan(&run.ID, &run.EmployerTaxID, &run.PeriodMonth, &run.PeriodYear, &run.State, &run.ParamsVersion, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RunSummary{}, DeclarationBatch{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return RunSummary{}, DeclarationBatch{}, err
	}

	rows, err := s.DB.Query(ctx, `
    SELECT employee_id, employee_tax_id, declaration_id, result, error
    FROM declaration_entries
    WHERE run_id = $1
    ORDER BY position
  `, runID)
	if err != nil {
		return RunSummary{}, DeclarationBatch{}, err
	}
	defer rows.Close()

	batch := DeclarationBatch{PeriodMonth: run.PeriodMonth, PeriodYear: run.PeriodYear, ParamsVersion: run.ParamsVersion}
	for rows.Next() {
		var entry DeclarationEntry
		var result []byte
		if err := rows.Scan(&entry.EmployeeID, &entry.EmployeeTaxID, &entry.DeclarationID, &result, &entry.Error); err != nil {
			return RunSummary{}, DeclarationBatch{}, err
		}
		if len(result) > 0 {
			var r CalculationResult
			if err := json.Unmarshal(result, &r); err != nil {
				return RunSummary{}, DeclarationBatch{}, err
			}
			entry.Result = &r
		}
		if entry.Error != "" {
			entry.Err = errors.New(entry.Error)
		}
		batch.Entries = append(batch.Entries, entry)
	}
	if err := rows.Err(); err != nil {
		return RunSummary{}, DeclarationBatch{}, err
	}
	batch.Totals = SumEntries(batch.Entries)
	return run, batch, nil
}

func (s *Store) ListRuns(ctx context.Context, employerTaxID string, limit, offset int) ([]RunSummary, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id::text, employer_tax_id, period_month, period_year, state, params_version, created_at
    FROM declaration_runs
    WHERE employer_tax_id = $1
    ORDER BY period_year DESC, period_month DESC, created_at DESC
    LIMIT $2 OFFSET $3
  `, employerTaxID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var run RunSummary
		if err := rows.Scan(&run.ID, &run.EmployerTaxID, &run.PeriodMonth, &run.PeriodYear, &run.State, &run.ParamsVersion, &run.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
