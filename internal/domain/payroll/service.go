package payroll

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	cryptoutil "statpay/internal/platform/crypto"
	"statpay/internal/platform/metrics"
)

const (
	PayslipStatusCurrent = "current"
	PayslipStatusStale   = "stale"
	PayslipStatusInvalid = "invalid"
)

// ParamsSource hands out the fiscal parameters in force. Snapshot must return
// a copy that later reloads cannot change.
type ParamsSource interface {
	Snapshot() FiscalParameters
	Version() string
}

type Renderer interface {
	DeclarationCSV(run RunSummary, batch DeclarationBatch) ([]byte, error)
	DeclarationPDF(run RunSummary, batch DeclarationBatch) ([]byte, error)
	PayslipPDF(record CompensationRecord, result CalculationResult) ([]byte, error)
}

// Auditor keeps a trail of changes to records and declaration runs.
type Auditor interface {
	Record(ctx context.Context, action, entityType, entityID, employerTaxID string, after any) error
}

type ServiceDeps struct {
	Store     StoreAPI
	Auditor   Auditor
	Cache     *SnapshotCache
	Params    ParamsSource
	Renderer  Renderer
	Sealer    *cryptoutil.Service
	ExportDir string
	Logger    *zap.Logger
	Metrics   *metrics.Collector
}

type Service struct {
	store     StoreAPI
	auditor   Auditor
	cache     *SnapshotCache
	params    ParamsSource
	renderer  Renderer
	sealer    *cryptoutil.Service
	exportDir string
	log       *zap.Logger
	metrics   *metrics.Collector
	now       func() time.Time
	sf        singleflight.Group
}

func NewService(deps ServiceDeps) *Service {
	log := deps.Logger
	if log == nil {
		log = zap.L()
	}
	return &Service{
		store:     deps.Store,
		auditor:   deps.Auditor,
		cache:     deps.Cache,
		params:    deps.Params,
		renderer:  deps.Renderer,
		sealer:    deps.Sealer,
		exportDir: deps.ExportDir,
		log:       log.Named("payroll"),
		metrics:   deps.Metrics,
		now:       time.Now,
	}
}

type DeclareInput struct {
	EmployerTaxID string   `json:"employerTaxId"`
	Month         int      `json:"month"`
	Year          int      `json:"year"`
	EmployeeIDs   []string `json:"employeeIds"`
}

type LastPayslip struct {
	EmployeeID    string             `json:"employeeId"`
	PeriodMonth   int                `json:"periodMonth"`
	PeriodYear    int                `json:"periodYear"`
	Status        string             `json:"status"`
	ParamsVersion string             `json:"paramsVersion"`
	CapturedAt    time.Time          `json:"capturedAt"`
	Record        CompensationRecord `json:"record"`
	Result        CalculationResult  `json:"result"`
}

type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
}

func (s *Service) FiscalParameters() FiscalParameters {
	return s.params.Snapshot()
}

// SaveRecord stores the compensation record of one employee and period,
// replacing any earlier version.
func (s *Service) SaveRecord(ctx context.Context, record CompensationRecord) (CompensationRecord, error) {
	record.EmployeeID = strings.TrimSpace(record.EmployeeID)
	record.EmployerTaxID = strings.TrimSpace(record.EmployerTaxID)
	if record.EmployeeID == "" {
		return CompensationRecord{}, fmt.Errorf("%w: employeeId is required", ErrInvalidRecord)
	}
	if record.EmployerTaxID == "" {
		return CompensationRecord{}, fmt.Errorf("%w: employerTaxId is required", ErrInvalidRecord)
	}
	if err := validatePeriod(record.PeriodMonth, record.PeriodYear); err != nil {
		return CompensationRecord{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if record.WorkedDays < 0 {
		return CompensationRecord{}, fmt.Errorf("%w: workedDays must not be negative", ErrInvalidRecord)
	}
	record.LineItems = NormalizeLineItems(record.LineItems)

	if err := s.store.UpsertRecord(ctx, record); err != nil {
		return CompensationRecord{}, err
	}
	s.cache.Invalidate(ctx, record.EmployeeID)
	s.audit(ctx, AuditRecordSaved, AuditEntityRecord, record.EmployeeID, record.EmployerTaxID, record)
	return record, nil
}

// Preview computes one payslip and remembers it as the employee's last
// payslip. Failing to remember it does not fail the preview.
func (s *Service) Preview(ctx context.Context, record CompensationRecord) (CalculationResult, error) {
	params := s.params.Snapshot()
	record.LineItems = NormalizeLineItems(record.LineItems)
	result := ComputeForEmployee(record, params)
	s.metrics.ObserveCalculation(warningCodes(result))

	if strings.TrimSpace(record.EmployeeID) != "" && validatePeriod(record.PeriodMonth, record.PeriodYear) == nil {
		if err := s.remember(ctx, record, result, params.Version); err != nil {
			s.log.Warn("payslip snapshot not saved", zap.String("employee_id", record.EmployeeID), zap.Error(err))
		}
	}
	return result, nil
}

// LastPayslip returns the employee's last payslip, re-validated against the
// parameters in force. A stale snapshot is recomputed and replaced; an
// invalid one is discarded and recomputed from the stored record. A snapshot
// that cannot be opened at all carries no trusted period, so the employee's
// most recent stored record is used instead.
func (s *Service) LastPayslip(ctx context.Context, employeeID string) (LastPayslip, error) {
	snapshot, err := s.fetchSnapshot(ctx, employeeID)
	if err != nil {
		switch {
		case errors.Is(err, ErrSnapshotNotFound):
			s.metrics.ObserveSnapshot(metrics.SnapshotMiss)
		case errors.Is(err, ErrSnapshotInvalid):
			s.metrics.ObserveSnapshot(metrics.SnapshotInvalid)
			s.log.Warn("unreadable payslip snapshot", zap.String("employee_id", employeeID), zap.Error(err))
			return s.payslipFromLatestRecord(ctx, employeeID, err)
		}
		return LastPayslip{}, err
	}

	params := s.params.Snapshot()
	view := LastPayslip{
		EmployeeID:    employeeID,
		PeriodMonth:   snapshot.PeriodMonth,
		PeriodYear:    snapshot.PeriodYear,
		ParamsVersion: params.Version,
		CapturedAt:    snapshot.CapturedAt,
		Record:        snapshot.Record,
	}

	result, err := ResolveSnapshot(snapshot, params)
	switch {
	case err == nil:
		s.metrics.ObserveSnapshot(metrics.SnapshotReused)
		view.Status = PayslipStatusCurrent
		view.ParamsVersion = snapshot.ParamsVersion
		view.Result = result
	case errors.Is(err, ErrSnapshotStale):
		s.metrics.ObserveSnapshot(metrics.SnapshotStale)
		s.log.Info("recomputing stale payslip", zap.String("employee_id", employeeID), zap.Error(err))
		view.Status = PayslipStatusStale
		view.Result = result
		if err := s.remember(ctx, snapshot.Record, result, params.Version); err != nil {
			s.log.Warn("payslip snapshot not refreshed", zap.String("employee_id", employeeID), zap.Error(err))
		}
	default:
		s.metrics.ObserveSnapshot(metrics.SnapshotInvalid)
		s.log.Warn("discarding invalid payslip snapshot", zap.String("employee_id", employeeID), zap.Error(err))
		s.cache.Invalidate(ctx, employeeID)
		record, gerr := s.store.GetRecord(ctx, employeeID, snapshot.PeriodMonth, snapshot.PeriodYear)
		if gerr != nil {
			return LastPayslip{}, fmt.Errorf("%w: %v", ErrSnapshotInvalid, gerr)
		}
		view.Status = PayslipStatusInvalid
		view.Record = record
		view.Result = ComputeForEmployee(record, params)
	}
	return view, nil
}

func (s *Service) payslipFromLatestRecord(ctx context.Context, employeeID string, cause error) (LastPayslip, error) {
	record, err := s.store.LatestRecord(ctx, employeeID)
	if err != nil {
		return LastPayslip{}, fmt.Errorf("%w: %v", cause, err)
	}
	params := s.params.Snapshot()
	return LastPayslip{
		EmployeeID:    employeeID,
		PeriodMonth:   record.PeriodMonth,
		PeriodYear:    record.PeriodYear,
		Status:        PayslipStatusInvalid,
		ParamsVersion: params.Version,
		Record:        record,
		Result:        ComputeForEmployee(record, params),
	}, nil
}

// PayslipPDF renders the employee's last payslip.
func (s *Service) PayslipPDF(ctx context.Context, employeeID string) (ExportFile, error) {
	last, err := s.LastPayslip(ctx, employeeID)
	if err != nil {
		return ExportFile{}, err
	}
	data, err := s.renderer.PayslipPDF(last.Record, last.Result)
	if err != nil {
		return ExportFile{}, err
	}
	return ExportFile{
		Name:        fmt.Sprintf("payslip-%s-%04d-%02d.pdf", employeeID, last.PeriodYear, last.PeriodMonth),
		ContentType: "application/pdf",
		Data:        data,
	}, nil
}

// Declare computes the monthly declaration of an employer. Every entry of
// the run is computed against one parameter snapshot; an empty selection
// declares every stored record of the period.
func (s *Service) Declare(ctx context.Context, in DeclareInput) (RunSummary, DeclarationBatch, error) {
	in.EmployerTaxID = strings.TrimSpace(in.EmployerTaxID)
	if in.EmployerTaxID == "" {
		return RunSummary{}, DeclarationBatch{}, fmt.Errorf("%w: employerTaxId is required", ErrInvalidDeclaration)
	}
	if err := validatePeriod(in.Month, in.Year); err != nil {
		return RunSummary{}, DeclarationBatch{}, fmt.Errorf("%w: %v", ErrInvalidDeclaration, err)
	}

	params := s.params.Snapshot()
	records, err := s.store.ListRecords(ctx, in.EmployerTaxID, in.Month, in.Year)
	if err != nil {
		return RunSummary{}, DeclarationBatch{}, err
	}

	run := NewDeclarationRun(uuid.NewString())
	var employees []string
	if len(in.EmployeeIDs) > 0 {
		byEmployee := make(map[string]CompensationRecord, len(records))
		for _, record := range records {
			byEmployee[record.EmployeeID] = record
		}
		if err := run.PopulateSelection(in.EmployeeIDs, byEmployee); err != nil {
			return RunSummary{}, DeclarationBatch{}, err
		}
		employees = run.Selection
	} else {
		if err := run.Populate(records); err != nil {
			return RunSummary{}, DeclarationBatch{}, err
		}
		for _, record := range records {
			employees = append(employees, record.EmployeeID)
		}
	}

	summary := RunSummary{
		ID:            run.ID,
		EmployerTaxID: in.EmployerTaxID,
		PeriodMonth:   in.Month,
		PeriodYear:    in.Year,
		State:         run.State,
		ParamsVersion: params.Version,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.CreateRun(ctx, summary, params); err != nil {
		return RunSummary{}, DeclarationBatch{}, err
	}

	snapshots := s.snapshotsFor(ctx, employees)
	calc := SnapshotCalculator(snapshots, func(employeeID string, err error) {
		if errors.Is(err, ErrSnapshotStale) {
			s.metrics.ObserveSnapshot(metrics.SnapshotStale)
		} else {
			s.metrics.ObserveSnapshot(metrics.SnapshotInvalid)
		}
		s.log.Info("payslip snapshot not reused", zap.String("run_id", run.ID),
			zap.String("employee_id", employeeID), zap.Error(err))
	})

	batch, err := run.Compute(params, calc)
	if err != nil {
		return RunSummary{}, DeclarationBatch{}, err
	}
	batch.PeriodMonth = in.Month
	batch.PeriodYear = in.Year

	if err := s.store.SaveRunEntries(ctx, run.ID, batch); err != nil {
		return RunSummary{}, DeclarationBatch{}, err
	}
	failed := len(batch.Failed())
	s.metrics.ObserveDeclaration(batch.Totals.EmployeeCount, failed)
	s.log.Info("declaration computed",
		zap.String("run_id", run.ID),
		zap.String("employer_tax_id", in.EmployerTaxID),
		zap.Int("computed", batch.Totals.EmployeeCount),
		zap.Int("failed", failed),
		zap.String("params_version", params.Version),
	)

	summary.State = run.State
	s.audit(ctx, AuditDeclarationComputed, AuditEntityDeclaration, summary.ID, summary.EmployerTaxID, batch.Totals)
	return summary, batch, nil
}

func (s *Service) GetRun(ctx context.Context, runID string) (RunSummary, DeclarationBatch, error) {
	return s.store.GetRun(ctx, runID)
}

func (s *Service) ListRuns(ctx context.Context, employerTaxID string, limit, offset int) ([]RunSummary, error) {
	return s.store.ListRuns(ctx, employerTaxID, limit, offset)
}

// Export renders a computed run, archives a sealed copy under the export
// directory and marks the run exported. Exporting twice is allowed.
func (s *Service) Export(ctx context.Context, runID, format string) (ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != ExportFormatPDF && format != ExportFormatCSV {
		return ExportFile{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	summary, batch, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return ExportFile{}, err
	}
	run := NewDeclarationRun(summary.ID)
	if summary.State == RunStateComputed || summary.State == RunStateExported {
		if err := run.Restore(batch); err != nil {
			return ExportFile{}, err
		}
	} else {
		run.State = summary.State
	}
	if err := run.MarkExported(); err != nil {
		return ExportFile{}, err
	}

	file := ExportFile{Name: fmt.Sprintf("declaration-%s-%04d-%02d.%s", summary.EmployerTaxID, summary.PeriodYear, summary.PeriodMonth, format)}
	switch format {
	case ExportFormatCSV:
		file.ContentType = "text/csv"
		file.Data, err = s.renderer.DeclarationCSV(summary, batch)
	default:
		file.ContentType = "application/pdf"
		file.Data, err = s.renderer.DeclarationPDF(summary, batch)
	}
	if err != nil {
		return ExportFile{}, err
	}

	if err := s.archive(summary.ID, format, file.Data); err != nil {
		return ExportFile{}, err
	}
	if err := s.store.UpdateRunState(ctx, summary.ID, run.State); err != nil {
		return ExportFile{}, err
	}
	s.log.Info("declaration exported", zap.String("run_id", summary.ID), zap.String("format", format))
	s.audit(ctx, AuditDeclarationExported, AuditEntityDeclaration, summary.ID, summary.EmployerTaxID, map[string]string{"format": format})
	return file, nil
}

// audit never fails the operation it records.
func (s *Service) audit(ctx context.Context, action, entityType, entityID, employerTaxID string, after any) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, action, entityType, entityID, employerTaxID, after); err != nil {
		s.log.Warn("audit event not recorded", zap.String("action", action), zap.String("entity_id", entityID), zap.Error(err))
	}
}

func (s *Service) archive(runID, format string, data []byte) error {
	if s.exportDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return err
	}
	name := runID + "." + format
	if s.sealer.Configured() {
		sealed, err := s.sealer.Encrypt(data)
		if err != nil {
			return err
		}
		data = sealed
		name += ".enc"
	}
	return os.WriteFile(filepath.Join(s.exportDir, name), data, 0o600)
}

func (s *Service) remember(ctx context.Context, record CompensationRecord, result CalculationResult, paramsVersion string) error {
	snapshot, err := NewSnapshot(record, result, paramsVersion, s.now())
	if err != nil {
		return err
	}
	if err := s.store.SaveSnapshot(ctx, snapshot); err != nil {
		return err
	}
	if err := s.cache.Put(ctx, snapshot); err != nil {
		s.log.Warn("snapshot cache write failed", zap.String("employee_id", record.EmployeeID), zap.Error(err))
	}
	return nil
}

// fetchSnapshot reads through the cache; concurrent misses for one employee
// share a single store lookup.
func (s *Service) fetchSnapshot(ctx context.Context, employeeID string) (PayslipSnapshot, error) {
	snapshot, err := s.cache.Get(ctx, employeeID)
	if err == nil {
		return snapshot, nil
	}
	if !errors.Is(err, ErrSnapshotNotFound) {
		s.log.Warn("snapshot cache read failed", zap.String("employee_id", employeeID), zap.Error(err))
	}

	v, err, _ := s.sf.Do(SnapshotKey(employeeID), func() (interface{}, error) {
		snapshot, err := s.store.LatestSnapshot(ctx, employeeID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Put(ctx, snapshot); err != nil {
			s.log.Warn("snapshot cache write failed", zap.String("employee_id", employeeID), zap.Error(err))
		}
		return snapshot, nil
	})
	if err != nil {
		return PayslipSnapshot{}, err
	}
	return v.(PayslipSnapshot), nil
}

func (s *Service) snapshotsFor(ctx context.Context, employees []string) map[string]PayslipSnapshot {
	snapshots := make(map[string]PayslipSnapshot, len(employees))
	for _, employeeID := range employees {
		snapshot, err := s.fetchSnapshot(ctx, employeeID)
		if err != nil {
			if !errors.Is(err, ErrSnapshotNotFound) && !errors.Is(err, ErrSnapshotInvalid) {
				s.log.Warn("snapshot lookup failed", zap.String("employee_id", employeeID), zap.Error(err))
			}
			continue
		}
		snapshots[employeeID] = snapshot
	}
	return snapshots
}

func validatePeriod(month, year int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("month %d out of range", month)
	}
	if year < 1900 || year > 9999 {
		return fmt.Errorf("year %d out of range", year)
	}
	return nil
}

func warningCodes(result CalculationResult) []string {
	codes := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		codes = append(codes, w.Code)
	}
	return codes
}
