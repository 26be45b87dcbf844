package payroll

import "errors"

var (
	ErrMissingEmployeeTaxID = errors.New("missing_employee_tax_id")
	ErrNonPositiveSalary    = errors.New("non_positive_base_salary")
	ErrRecordNotFound       = errors.New("compensation_record_not_found")
	ErrDeclarationField     = errors.New("invalid_declaration_field")
	ErrInvalidTransition    = errors.New("invalid_declaration_run_transition")
	ErrRunNotFound          = errors.New("declaration_run_not_found")
	ErrInvalidFiscalParams  = errors.New("invalid_fiscal_parameters")
	ErrSnapshotInvalid      = errors.New("payslip_snapshot_invalid")
	ErrSnapshotStale        = errors.New("payslip_snapshot_stale")
	ErrSnapshotNotFound     = errors.New("payslip_snapshot_not_found")
	ErrUnsupportedFormat    = errors.New("unsupported_export_format")
	ErrInvalidRecord        = errors.New("invalid_compensation_record")
	ErrInvalidDeclaration   = errors.New("invalid_declaration_request")
)
