package payroll

import "context"

type StoreAPI interface {
	UpsertRecord(ctx context.Context, record CompensationRecord) error
	GetRecord(ctx context.Context, employeeID string, month, year int) (CompensationRecord, error)
	LatestRecord(ctx context.Context, employeeID string) (CompensationRecord, error)
	ListRecords(ctx context.Context, employerTaxID string, month, year int) ([]CompensationRecord, error)
	SaveSnapshot(ctx context.Context, snapshot PayslipSnapshot) error
	LatestSnapshot(ctx context.Context, employeeID string) (PayslipSnapshot, error)
	CreateRun(ctx context.Context, run RunSummary, params FiscalParameters) error
	SaveRunEntries(ctx context.Context, runID string, batch DeclarationBatch) error
	UpdateRunState(ctx context.Context, runID, state string) error
	GetRun(ctx context.Context, runID string) (RunSummary, DeclarationBatch, error)
	ListRuns(ctx context.Context, employerTaxID string, limit, offset int) ([]RunSummary, error)
}
