package payroll

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ComputeForEmployee runs the full calculation for one compensation record.
// It never fails: malformed amounts count as zero and problems are reported
// as warnings on the result.
func ComputeForEmployee(record CompensationRecord, params FiscalParameters) CalculationResult {
	earnings := Categorize(record)
	bases := ComputeBases(record.BaseSalary, earnings, params)
	deductions := ComputeEmployeeDeductions(bases, params)
	charges := ComputeEmployerCharges(bases, record.RiskCategory, params)
	net := ComputeNetPay(GrossEarnings(record), deductions)

	result := CalculationResult{
		TaxableBase:        bases.TaxableBase,
		ContributableBase:  bases.ContributableBase,
		EmployeeDeductions: deductions,
		EmployerCharges:    charges,
		GrossTotal:         net.GrossTotal,
		NetPay:             net.NetPay,
	}
	result.Warnings = collectWarnings(record, result, params)
	return result
}

func collectWarnings(record CompensationRecord, result CalculationResult, params FiscalParameters) []Warning {
	var warnings []Warning
	if params.MinimumWage > 0 && nonNegative(record.BaseSalary).LessThan(decimal.NewFromInt(params.MinimumWage)) {
		warnings = append(warnings, Warning{
			Code:    WarningBelowMinimumWage,
			Message: fmt.Sprintf("base salary %s is below the minimum wage of %d", nonNegative(record.BaseSalary).String(), params.MinimumWage),
		})
	}
	if strings.TrimSpace(record.EmployeeTaxID) == "" {
		warnings = append(warnings, Warning{Code: WarningMissingTaxID, Message: "employee tax identifier is missing"})
	}
	if result.ContributableBase >= params.ContributableBaseCap {
		warnings = append(warnings, Warning{
			Code:    WarningBaseAtCap,
			Message: fmt.Sprintf("contributable base reached the cap of %d", params.ContributableBaseCap),
		})
	}
	if _, ok := params.RiskRateFor(record.RiskCategory); !ok {
		warnings = append(warnings, Warning{
			Code:    WarningUnknownRiskCategory,
			Message: fmt.Sprintf("risk category %q is not configured, lowest rate applied", record.RiskCategory),
		})
	}
	if result.NetPay < 0 {
		warnings = append(warnings, Warning{
			Code:    WarningNegativeNet,
			Message: fmt.Sprintf("deductions exceed gross pay by %d", -result.NetPay),
		})
	}
	return warnings
}

// HasWarning reports whether the result carries a warning with the given code.
func (r CalculationResult) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}
