package payroll

import (
	"fmt"
	"strings"
)

// Calculator computes one record. ComputeForEmployee is the reference
// implementation; the snapshot reuse path must agree with it.
type Calculator func(CompensationRecord, FiscalParameters) CalculationResult

// ComputeBatch computes every record of a declaration. A record that fails
// validation is reported on its own entry and does not stop the others.
// Entries keep the input order.
func ComputeBatch(records []CompensationRecord, params FiscalParameters) DeclarationBatch {
	return ComputeBatchWith(records, params, ComputeForEmployee)
}

func ComputeBatchWith(records []CompensationRecord, params FiscalParameters, calc Calculator) DeclarationBatch {
	if calc == nil {
		calc = ComputeForEmployee
	}
	batch := DeclarationBatch{
		ParamsVersion: params.Version,
		Entries:       make([]DeclarationEntry, 0, len(records)),
	}
	for _, record := range records {
		batch.Entries = append(batch.Entries, computeEntry(record, params, calc))
	}
	if len(records) > 0 {
		batch.PeriodMonth = records[0].PeriodMonth
		batch.PeriodYear = records[0].PeriodYear
	}
	batch.Totals = SumEntries(batch.Entries)
	return batch
}

// ComputeSelection computes the selected employees in selection order. An id
// with no record yields an ErrRecordNotFound entry; a repeated id is computed
// once, at its first position.
func ComputeSelection(selection []string, records map[string]CompensationRecord, params FiscalParameters) DeclarationBatch {
	return ComputeSelectionWith(selection, records, params, ComputeForEmployee)
}

func ComputeSelectionWith(selection []string, records map[string]CompensationRecord, params FiscalParameters, calc Calculator) DeclarationBatch {
	if calc == nil {
		calc = ComputeForEmployee
	}
	selection = UniqueIDs(selection)
	batch := DeclarationBatch{
		ParamsVersion: params.Version,
		Entries:       make([]DeclarationEntry, 0, len(selection)),
	}
	for _, employeeID := range selection {
		record, ok := records[employeeID]
		if !ok {
			batch.Entries = append(batch.Entries, failedEntry(CompensationRecord{EmployeeID: employeeID},
				fmt.Errorf("%w: %s", ErrRecordNotFound, employeeID)))
			continue
		}
		if batch.PeriodMonth == 0 {
			batch.PeriodMonth = record.PeriodMonth
			batch.PeriodYear = record.PeriodYear
		}
		batch.Entries = append(batch.Entries, computeEntry(record, params, calc))
	}
	batch.Totals = SumEntries(batch.Entries)
	return batch
}

// UniqueIDs drops blank and repeated ids, keeping first-seen order.
func UniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ValidateRecord reports the defects that keep a record out of a declaration.
func ValidateRecord(record CompensationRecord) error {
	if strings.TrimSpace(record.EmployeeTaxID) == "" {
		return ErrMissingEmployeeTaxID
	}
	if !record.BaseSalary.IsPositive() {
		return ErrNonPositiveSalary
	}
	return nil
}

func computeEntry(record CompensationRecord, params FiscalParameters, calc Calculator) DeclarationEntry {
	if err := ValidateRecord(record); err != nil {
		return failedEntry(record, err)
	}
	declarationID, err := DeclarationIDFor(record)
	if err != nil {
		return failedEntry(record, err)
	}
	result := calc(record, params)
	return DeclarationEntry{
		EmployeeID:    record.EmployeeID,
		EmployeeTaxID: record.EmployeeTaxID,
		DeclarationID: declarationID,
		Result:        &result,
	}
}

func failedEntry(record CompensationRecord, err error) DeclarationEntry {
	return DeclarationEntry{
		EmployeeID:    record.EmployeeID,
		EmployeeTaxID: record.EmployeeTaxID,
		Err:           err,
		Error:         err.Error(),
	}
}

// SumEntries adds up every numeric field of the computed entries.
func SumEntries(entries []DeclarationEntry) DeclarationTotals {
	var t DeclarationTotals
	for _, entry := range entries {
		if entry.Result == nil {
			continue
		}
		r := entry.Result
		t.EmployeeCount++
		t.TaxableBase += r.TaxableBase
		t.ContributableBase += r.ContributableBase
		t.GrossTotal += r.GrossTotal
		t.NetPay += r.NetPay

		t.EmployeeDeductions.Pension += r.EmployeeDeductions.Pension
		t.EmployeeDeductions.IncomeTax += r.EmployeeDeductions.IncomeTax
		t.EmployeeDeductions.IncomeTaxSurcharge += r.EmployeeDeductions.IncomeTaxSurcharge
		t.EmployeeDeductions.PayrollTaxEmployee += r.EmployeeDeductions.PayrollTaxEmployee
		t.EmployeeDeductions.LevyA += r.EmployeeDeductions.LevyA
		t.EmployeeDeductions.LevyB += r.EmployeeDeductions.LevyB
		t.EmployeeDeductions.Total += r.EmployeeDeductions.Total

		t.EmployerCharges.Pension += r.EmployerCharges.Pension
		t.EmployerCharges.FamilyBenefit += r.EmployerCharges.FamilyBenefit
		t.EmployerCharges.OccupationalRisk += r.EmployerCharges.OccupationalRisk
		t.EmployerCharges.PayrollTaxEmployer += r.EmployerCharges.PayrollTaxEmployer
		t.EmployerCharges.PayrollSurchargeEmployer += r.EmployerCharges.PayrollSurchargeEmployer
		t.EmployerCharges.Total += r.EmployerCharges.Total
	}
	return t
}

// DeclarationRun walks one monthly declaration through
// empty -> populated -> computed -> exported.
type DeclarationRun struct {
	ID        string
	State     string
	Records   []CompensationRecord
	Selection []string
	Batch     *DeclarationBatch

	byEmployee map[string]CompensationRecord
}

func NewDeclarationRun(id string) *DeclarationRun {
	return &DeclarationRun{ID: id, State: RunStateEmpty}
}

func (r *DeclarationRun) Populate(records []CompensationRecord) error {
	if r.State != RunStateEmpty {
		return fmt.Errorf("%w: populate from %s", ErrInvalidTransition, r.State)
	}
	r.Records = append([]CompensationRecord(nil), records...)
	r.State = RunStatePopulated
	return nil
}

// PopulateSelection fills the run from a selection of employee ids; ids
// missing from records are reported when the run is computed.
func (r *DeclarationRun) PopulateSelection(selection []string, records map[string]CompensationRecord) error {
	if r.State != RunStateEmpty {
		return fmt.Errorf("%w: populate from %s", ErrInvalidTransition, r.State)
	}
	r.Selection = UniqueIDs(selection)
	r.byEmployee = make(map[string]CompensationRecord, len(records))
	for id, record := range records {
		r.byEmployee[id] = record
	}
	r.State = RunStatePopulated
	return nil
}

// Compute runs the batch; a nil calc uses ComputeForEmployee.
func (r *DeclarationRun) Compute(params FiscalParameters, calc Calculator) (DeclarationBatch, error) {
	if r.State != RunStatePopulated {
		return DeclarationBatch{}, fmt.Errorf("%w: compute from %s", ErrInvalidTransition, r.State)
	}
	var batch DeclarationBatch
	if r.Selection != nil {
		batch = ComputeSelectionWith(r.Selection, r.byEmployee, params, calc)
	} else {
		batch = ComputeBatchWith(r.Records, params, calc)
	}
	r.Batch = &batch
	r.State = RunStateComputed
	return batch, nil
}

// Restore places an already computed batch on an empty run, used when a
// run is reloaded from storage.
func (r *DeclarationRun) Restore(batch DeclarationBatch) error {
	if r.State != RunStateEmpty {
		return fmt.Errorf("%w: restore from %s", ErrInvalidTransition, r.State)
	}
	r.Batch = &batch
	r.State = RunStateComputed
	return nil
}

func (r *DeclarationRun) MarkExported() error {
	if r.State != RunStateComputed && r.State != RunStateExported {
		return fmt.Errorf("%w: export from %s", ErrInvalidTransition, r.State)
	}
	r.State = RunStateExported
	return nil
}
