package payroll

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func sampleRecord() CompensationRecord {
	return CompensationRecord{
		EmployeeID: "emp-1",
		BaseSalary: decimal.NewFromInt(85_000),
		LineItems: []EarningsLineItem{
			{Label: "Prime de panier", Amount: decimal.NewFromInt(55_000)},
		},
		WorkedDays:    30,
		EmployeeTaxID: "P012345678901A",
		EmployerTaxID: "M098765432101B",
		PeriodMonth:   3,
		PeriodYear:    2024,
		RiskCategory:  RiskCategoryA,
	}
}

func TestComputeForEmployee(t *testing.T) {
	result := ComputeForEmployee(sampleRecord(), DefaultFiscalParameters())

	if result.TaxableBase != 85_000 || result.ContributableBase != 85_000 {
		t.Fatalf("expected bases 85000/85000, got %d/%d", result.TaxableBase, result.ContributableBase)
	}
	want := EmployeeDeductions{
		Pension:            3_570,
		IncomeTax:          1_426,
		IncomeTaxSurcharge: 143,
		PayrollTaxEmployee: 850,
		LevyA:              750,
		LevyB:              143,
		Total:              6_882,
	}
	if result.EmployeeDeductions != want {
		t.Fatalf("expected deductions %+v, got %+v", want, result.EmployeeDeductions)
	}
	wantCharges := EmployerCharges{
		Pension:                  3_570,
		FamilyBenefit:            5_950,
		OccupationalRisk:         1_488,
		PayrollTaxEmployer:       850,
		PayrollSurchargeEmployer: 1_275,
		Total:                    13_133,
	}
	if result.EmployerCharges != wantCharges {
		t.Fatalf("expected charges %+v, got %+v", wantCharges, result.EmployerCharges)
	}
	if result.GrossTotal != 140_000 {
		t.Fatalf("expected gross 140000, got %d", result.GrossTotal)
	}
	if result.NetPay != 133_118 {
		t.Fatalf("expected net 133118, got %d", result.NetPay)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %+v", result.Warnings)
	}
}

func TestComputeForEmployeeIsIdempotent(t *testing.T) {
	params := DefaultFiscalParameters()
	record := sampleRecord()

	first, _ := json.Marshal(ComputeForEmployee(record, params))
	second, _ := json.Marshal(ComputeForEmployee(record, params))
	if string(first) != string(second) {
		t.Fatalf("expected identical results, got %s and %s", first, second)
	}
}

func TestComputeForEmployeeZeroEarnings(t *testing.T) {
	record := CompensationRecord{EmployeeID: "emp-0", EmployeeTaxID: "P1", RiskCategory: RiskCategoryA}
	result := ComputeForEmployee(record, DefaultFiscalParameters())

	if result.TaxableBase != 0 || result.ContributableBase != 0 {
		t.Fatalf("expected zero bases, got %d/%d", result.TaxableBase, result.ContributableBase)
	}
	if result.EmployeeDeductions.Total != 0 || result.EmployerCharges.Total != 0 {
		t.Fatalf("expected zero totals, got %d/%d", result.EmployeeDeductions.Total, result.EmployerCharges.Total)
	}
	if result.NetPay != 0 {
		t.Fatalf("expected zero net, got %d", result.NetPay)
	}
	if !result.HasWarning(WarningBelowMinimumWage) {
		t.Fatalf("expected below minimum wage warning, got %+v", result.Warnings)
	}
}

func TestComputeForEmployeeBelowMinimumWage(t *testing.T) {
	record := sampleRecord()
	record.BaseSalary = decimal.NewFromInt(30_000)
	record.LineItems = nil

	result := ComputeForEmployee(record, DefaultFiscalParameters())
	if !result.HasWarning(WarningBelowMinimumWage) {
		t.Fatalf("expected below minimum wage warning, got %+v", result.Warnings)
	}
	// 1260 pension + 300 payroll tax; income tax and both levies are zero here.
	if result.EmployeeDeductions.Total != 1_560 {
		t.Fatalf("expected deductions 1560, got %+v", result.EmployeeDeductions)
	}
	if result.NetPay != 28_440 {
		t.Fatalf("expected net 28440, got %d", result.NetPay)
	}
}

func TestComputeForEmployeeNegativeNetIsFlagged(t *testing.T) {
	params := DefaultFiscalParameters()
	params.LevyBBands = []Band{{Amount: 50_000}}

	record := sampleRecord()
	record.BaseSalary = decimal.NewFromInt(40_000)
	record.LineItems = nil

	result := ComputeForEmployee(record, params)
	if result.NetPay != -12_080 {
		t.Fatalf("expected net -12080, got %d", result.NetPay)
	}
	if !result.HasWarning(WarningNegativeNet) {
		t.Fatalf("expected negative net warning, got %+v", result.Warnings)
	}
}

func TestComputeForEmployeeWarnings(t *testing.T) {
	record := sampleRecord()
	record.EmployeeTaxID = " "
	record.RiskCategory = "Z"
	record.BaseSalary = decimal.NewFromInt(900_000)

	result := ComputeForEmployee(record, DefaultFiscalParameters())
	for _, code := range []string{WarningMissingTaxID, WarningUnknownRiskCategory, WarningBaseAtCap} {
		if !result.HasWarning(code) {
			t.Fatalf("expected warning %s, got %+v", code, result.Warnings)
		}
	}
	if result.HasWarning(WarningBelowMinimumWage) {
		t.Fatalf("did not expect below minimum wage warning")
	}
}

func TestNetPayDoesNotDropAcrossTaxBracket(t *testing.T) {
	params := DefaultFiscalParameters()
	record := sampleRecord()
	record.LineItems = nil

	// Net taxable income crosses the 166,667 bracket bound near a base of
	// 316,616, where both levies stay on the same band.
	var previous int64
	for base := int64(310_000); base <= 325_000; base += 100 {
		record.BaseSalary = decimal.NewFromInt(base)
		net := ComputeForEmployee(record, params).NetPay
		if base > 310_000 && net <= previous {
			t.Fatalf("net pay dropped at base %d: %d after %d", base, net, previous)
		}
		previous = net
	}
}
