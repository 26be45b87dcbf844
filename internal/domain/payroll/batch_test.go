package payroll

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchRecords() []CompensationRecord {
	a := sampleRecord()
	b := sampleRecord()
	b.EmployeeID = "emp-2"
	b.EmployeeTaxID = "P2"
	b.BaseSalary = decimal.NewFromInt(250_000)
	b.RiskCategory = RiskCategoryB
	c := sampleRecord()
	c.EmployeeID = "emp-3"
	c.EmployeeTaxID = ""
	d := sampleRecord()
	d.EmployeeID = "emp-4"
	d.EmployeeTaxID = "P4"
	d.BaseSalary = decimal.NewFromInt(900_000)
	d.TransportAllowance = decimal.NewFromInt(40_000)
	return []CompensationRecord{a, b, c, d}
}

func TestComputeBatchTotalsAreAdditive(t *testing.T) {
	params := DefaultFiscalParameters()
	records := batchRecords()
	batch := ComputeBatch(records, params)

	require.Len(t, batch.Entries, len(records))
	var want DeclarationTotals
	for _, record := range records {
		if ValidateRecord(record) != nil {
			continue
		}
		r := ComputeForEmployee(record, params)
		want.EmployeeCount++
		want.TaxableBase += r.TaxableBase
		want.ContributableBase += r.ContributableBase
		want.GrossTotal += r.GrossTotal
		want.NetPay += r.NetPay
		want.EmployeeDeductions.Total += r.EmployeeDeductions.Total
		want.EmployerCharges.Total += r.EmployerCharges.Total
		want.EmployerCharges.OccupationalRisk += r.EmployerCharges.OccupationalRisk
	}
	assert.Equal(t, 3, batch.Totals.EmployeeCount)
	assert.Equal(t, want.TaxableBase, batch.Totals.TaxableBase)
	assert.Equal(t, want.ContributableBase, batch.Totals.ContributableBase)
	assert.Equal(t, want.GrossTotal, batch.Totals.GrossTotal)
	assert.Equal(t, want.NetPay, batch.Totals.NetPay)
	assert.Equal(t, want.EmployeeDeductions.Total, batch.Totals.EmployeeDeductions.Total)
	assert.Equal(t, want.EmployerCharges.Total, batch.Totals.EmployerCharges.Total)
	assert.Equal(t, want.EmployerCharges.OccupationalRisk, batch.Totals.EmployerCharges.OccupationalRisk)
	assert.Equal(t, batch.Totals.EmployeeDeductions.Sum(), batch.Totals.EmployeeDeductions.Total)
	assert.Equal(t, batch.Totals.EmployerCharges.Sum(), batch.Totals.EmployerCharges.Total)
}

func TestComputeBatchKeepsOrderAndIsolatesErrors(t *testing.T) {
	batch := ComputeBatch(batchRecords(), DefaultFiscalParameters())

	ids := make([]string, 0, len(batch.Entries))
	for _, entry := range batch.Entries {
		ids = append(ids, entry.EmployeeID)
	}
	assert.Equal(t, []string{"emp-1", "emp-2", "emp-3", "emp-4"}, ids)

	failed := batch.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "emp-3", failed[0].EmployeeID)
	assert.True(t, errors.Is(failed[0].Err, ErrMissingEmployeeTaxID))
	assert.Nil(t, failed[0].Result)
	assert.NotEmpty(t, batch.Entries[0].DeclarationID)
	assert.Equal(t, 3, batch.PeriodMonth)
	assert.Equal(t, 2024, batch.PeriodYear)
	assert.Equal(t, "default-2024", batch.ParamsVersion)
}

func TestComputeBatchRejectsNonPositiveSalary(t *testing.T) {
	record := sampleRecord()
	record.BaseSalary = decimal.Zero
	batch := ComputeBatch([]CompensationRecord{record}, DefaultFiscalParameters())

	require.Len(t, batch.Failed(), 1)
	assert.True(t, errors.Is(batch.Entries[0].Err, ErrNonPositiveSalary))
	assert.Zero(t, batch.Totals.EmployeeCount)
}

func TestComputeBatchEmpty(t *testing.T) {
	batch := ComputeBatch(nil, DefaultFiscalParameters())
	assert.Empty(t, batch.Entries)
	assert.Equal(t, DeclarationTotals{}, batch.Totals)
}

func TestComputeSelectionReportsMissingRecords(t *testing.T) {
	records := map[string]CompensationRecord{}
	for _, r := range batchRecords() {
		records[r.EmployeeID] = r
	}
	batch := ComputeSelection([]string{"emp-2", "ghost", "emp-1"}, records, DefaultFiscalParameters())

	require.Len(t, batch.Entries, 3)
	assert.Equal(t, "emp-2", batch.Entries[0].EmployeeID)
	assert.True(t, errors.Is(batch.Entries[1].Err, ErrRecordNotFound))
	assert.Equal(t, "emp-1", batch.Entries[2].EmployeeID)
	assert.Equal(t, 2, batch.Totals.EmployeeCount)
}

func TestComputeSelectionCountsRepeatedIDOnce(t *testing.T) {
	records := map[string]CompensationRecord{"emp-1": sampleRecord()}
	batch := ComputeSelection([]string{"emp-1", "emp-1"}, records, DefaultFiscalParameters())

	require.Len(t, batch.Entries, 1)
	assert.Equal(t, 1, batch.Totals.EmployeeCount)
	assert.Equal(t, int64(140_000), batch.Totals.GrossTotal)
	assert.Equal(t, int64(133_118), batch.Totals.NetPay)
}

func TestUniqueIDs(t *testing.T) {
	assert.Equal(t, []string{"emp-2", "emp-1", "emp-3"},
		UniqueIDs([]string{"emp-2", " emp-1", "emp-2", "", "emp-3", "emp-1 "}))
	assert.Empty(t, UniqueIDs(nil))
}

func TestDeclarationRunTransitions(t *testing.T) {
	run := NewDeclarationRun("run-1")
	assert.Equal(t, RunStateEmpty, run.State)

	_, err := run.Compute(DefaultFiscalParameters(), nil)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.True(t, errors.Is(run.MarkExported(), ErrInvalidTransition))

	require.NoError(t, run.Populate(batchRecords()))
	assert.Equal(t, RunStatePopulated, run.State)
	assert.True(t, errors.Is(run.Populate(nil), ErrInvalidTransition))

	batch, err := run.Compute(DefaultFiscalParameters(), nil)
	require.NoError(t, err)
	assert.Equal(t, RunStateComputed, run.State)
	assert.Len(t, batch.Entries, 4)

	_, err = run.Compute(DefaultFiscalParameters(), nil)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	require.NoError(t, run.MarkExported())
	require.NoError(t, run.MarkExported())
	assert.Equal(t, RunStateExported, run.State)
}

func TestDeclarationRunPopulateSelection(t *testing.T) {
	records := map[string]CompensationRecord{}
	for _, r := range batchRecords() {
		records[r.EmployeeID] = r
	}
	run := NewDeclarationRun("run-2")
	require.NoError(t, run.PopulateSelection([]string{"emp-1", "missing", "emp-1"}, records))
	assert.Equal(t, []string{"emp-1", "missing"}, run.Selection)

	batch, err := run.Compute(DefaultFiscalParameters(), nil)
	require.NoError(t, err)
	require.Len(t, batch.Entries, 2)
	assert.True(t, errors.Is(batch.Entries[1].Err, ErrRecordNotFound))
}

func TestDeclarationRunRestore(t *testing.T) {
	run := NewDeclarationRun("run-3")
	require.NoError(t, run.Restore(DeclarationBatch{PeriodMonth: 1, PeriodYear: 2024}))
	assert.Equal(t, RunStateComputed, run.State)
	assert.True(t, errors.Is(run.Restore(DeclarationBatch{}), ErrInvalidTransition))
}
