package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// EarningsLineItem is one named earnings amount on a payslip. Tag is filled by
// NormalizeLineItems when the caller leaves it empty.
type EarningsLineItem struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
	Tag    EarningsTag     `json:"tag,omitempty"`
}

// CompensationRecord is the per-employee, per-period input of a calculation.
type CompensationRecord struct {
	EmployeeID         string             `json:"employeeId"`
	BaseSalary         decimal.Decimal    `json:"baseSalary"`
	LineItems          []EarningsLineItem `json:"lineItems"`
	TransportAllowance decimal.Decimal    `json:"transportAllowance"`
	HousingAllowance   decimal.Decimal    `json:"housingAllowance"`
	WorkedDays         int                `json:"workedDays"`
	EmployeeTaxID      string             `json:"employeeTaxId"`
	EmployerTaxID      string             `json:"employerTaxId"`
	PeriodMonth        int                `json:"periodMonth"`
	PeriodYear         int                `json:"periodYear"`
	RiskCategory       string             `json:"riskCategory"`
}

// CategorizedEarnings holds the per-bucket sums produced by Categorize.
type CategorizedEarnings struct {
	Taxable          decimal.Decimal
	ContributionOnly decimal.Decimal
	Exempt           decimal.Decimal
	BenefitInKind    decimal.Decimal
}

type WageBases struct {
	TaxableBase       int64 `json:"taxableBase"`
	ContributableBase int64 `json:"contributableBase"`
}

type EmployeeDeductions struct {
	Pension            int64 `json:"pension"`
	IncomeTax          int64 `json:"incomeTax"`
	IncomeTaxSurcharge int64 `json:"incomeTaxSurcharge"`
	PayrollTaxEmployee int64 `json:"payrollTaxEmployee"`
	LevyA              int64 `json:"levyA"`
	LevyB              int64 `json:"levyB"`
	Total              int64 `json:"total"`
}

type EmployerCharges struct {
	Pension                  int64 `json:"pension"`
	FamilyBenefit            int64 `json:"familyBenefit"`
	OccupationalRisk         int64 `json:"occupationalRisk"`
	PayrollTaxEmployer       int64 `json:"payrollTaxEmployer"`
	PayrollSurchargeEmployer int64 `json:"payrollSurchargeEmployer"`
	Total                    int64 `json:"total"`
}

type NetPay struct {
	GrossTotal int64 `json:"grossTotal"`
	NetPay     int64 `json:"netPay"`
}

// CalculationResult is the only output of a payroll calculation. Warnings are
// advisory; the caller decides whether they block persistence or export.
type CalculationResult struct {
	TaxableBase        int64              `json:"taxableBase"`
	ContributableBase  int64              `json:"contributableBase"`
	EmployeeDeductions EmployeeDeductions `json:"employeeDeductions"`
	EmployerCharges    EmployerCharges    `json:"employerCharges"`
	GrossTotal         int64              `json:"grossTotal"`
	NetPay             int64              `json:"netPay"`
	Warnings           []Warning          `json:"warnings,omitempty"`
}

type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DeclarationEntry is one employee line of a declaration batch. Exactly one of
// Result or Err is meaningful.
type DeclarationEntry struct {
	EmployeeID    string             `json:"employeeId"`
	EmployeeTaxID string             `json:"employeeTaxId"`
	DeclarationID string             `json:"declarationId,omitempty"`
	Result        *CalculationResult `json:"result,omitempty"`
	Err           error              `json:"-"`
	Error         string             `json:"error,omitempty"`
}

// DeclarationTotals sums every numeric field of the computed entries.
type DeclarationTotals struct {
	EmployeeCount      int                `json:"employeeCount"`
	TaxableBase        int64              `json:"taxableBase"`
	ContributableBase  int64              `json:"contributableBase"`
	EmployeeDeductions EmployeeDeductions `json:"employeeDeductions"`
	EmployerCharges    EmployerCharges    `json:"employerCharges"`
	GrossTotal         int64              `json:"grossTotal"`
	NetPay             int64              `json:"netPay"`
}

type DeclarationBatch struct {
	PeriodMonth   int                `json:"periodMonth"`
	PeriodYear    int                `json:"periodYear"`
	ParamsVersion string             `json:"paramsVersion"`
	Entries       []DeclarationEntry `json:"entries"`
	Totals        DeclarationTotals  `json:"totals"`
}

// Failed returns the entries that did not compute.
func (b DeclarationBatch) Failed() []DeclarationEntry {
	var out []DeclarationEntry
	for _, entry := range b.Entries {
		if entry.Err != nil {
			out = append(out, entry)
		}
	}
	return out
}

type RunSummary struct {
	ID            string    `json:"id"`
	EmployerTaxID string    `json:"employerTaxId"`
	PeriodMonth   int       `json:"periodMonth"`
	PeriodYear    int       `json:"periodYear"`
	State         string    `json:"state"`
	ParamsVersion string    `json:"paramsVersion"`
	CreatedAt     time.Time `json:"createdAt"`
}
