package payroll

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Bracket is one marginal income tax bracket. Upper is nil for the last,
// unbounded bracket.
type Bracket struct {
	Lower decimal.Decimal  `json:"lower"`
	Upper *decimal.Decimal `json:"upper,omitempty"`
	Rate  decimal.Decimal  `json:"rate"`
}

// Band is one step of a levy table, covering (previous UpTo, UpTo]. The levy
// is Amount plus round(value × Rate). UpTo is nil for the last, unbounded band.
type Band struct {
	UpTo   *decimal.Decimal `json:"upTo,omitempty"`
	Amount int64            `json:"amount"`
	Rate   decimal.Decimal  `json:"rate"`
}

// FiscalParameters is the rate and table snapshot a calculation runs against.
// It is treated as immutable for the duration of a computation.
type FiscalParameters struct {
	Version                 string                     `json:"version"`
	EmployeePensionRate     decimal.Decimal            `json:"employeePensionRate"`
	EmployerPensionRate     decimal.Decimal            `json:"employerPensionRate"`
	FamilyBenefitRate       decimal.Decimal            `json:"familyBenefitRate"`
	RiskRateByCategory      map[string]decimal.Decimal `json:"riskRateByCategory"`
	ContributableBaseCap    int64                      `json:"contributableBaseCap"`
	MonthlyAbatement        decimal.Decimal            `json:"monthlyAbatement"`
	ProfessionalExpenseRate decimal.Decimal            `json:"professionalExpenseRate"`
	IncomeTaxThreshold      int64                      `json:"incomeTaxThreshold"`
	MinimumWage             int64                      `json:"minimumWage"`
	IncomeTaxBrackets       []Bracket                  `json:"incomeTaxBrackets"`
	LevyABands              []Band                     `json:"levyABands"`
	LevyBBands              []Band                     `json:"levyBBands"`
	PayrollTaxRateEmployee  decimal.Decimal            `json:"payrollTaxRateEmployee"`
	PayrollTaxRateEmployer  decimal.Decimal            `json:"payrollTaxRateEmployer"`
	EmployerSurchargeRate   decimal.Decimal            `json:"employerSurchargeRate"`
	SurchargeRate           decimal.Decimal            `json:"surchargeRate"`
}

// DefaultFiscalParameters returns the compiled-in monthly parameter set.
func DefaultFiscalParameters() FiscalParameters {
	return FiscalParameters{
		Version:             "default-2024",
		EmployeePensionRate: decimal.RequireFromString("0.042"),
		EmployerPensionRate: decimal.RequireFromString("0.042"),
		FamilyBenefitRate:   decimal.RequireFromString("0.07"),
		RiskRateByCategory: map[string]decimal.Decimal{
			RiskCategoryA: decimal.RequireFromString("0.0175"),
			RiskCategoryB: decimal.RequireFromString("0.025"),
			RiskCategoryC: decimal.RequireFromString("0.05"),
		},
		ContributableBaseCap:    750_000,
		MonthlyAbatement:        decimal.NewFromInt(500_000).Div(decimal.NewFromInt(12)),
		ProfessionalExpenseRate: decimal.RequireFromString("0.30"),
		IncomeTaxThreshold:      62_000,
		MinimumWage:             36_270,
		IncomeTaxBrackets: []Bracket{
			{Lower: decimal.Zero, Upper: Bound(166_667), Rate: decimal.RequireFromString("0.10")},
			{Lower: decimal.NewFromInt(166_667), Upper: Bound(250_000), Rate: decimal.RequireFromString("0.15")},
			{Lower: decimal.NewFromInt(250_000), Upper: Bound(416_667), Rate: decimal.RequireFromString("0.25")},
			{Lower: decimal.NewFromInt(416_667), Rate: decimal.RequireFromString("0.35")},
		},
		LevyABands: []Band{
			{UpTo: Bound(50_000), Amount: 0},
			{UpTo: Bound(100_000), Amount: 750},
			{UpTo: Bound(200_000), Amount: 1_950},
			{UpTo: Bound(300_000), Amount: 3_250},
			{UpTo: Bound(400_000), Amount: 4_550},
			{UpTo: Bound(500_000), Amount: 5_850},
			{UpTo: Bound(600_000), Amount: 7_150},
			{UpTo: Bound(700_000), Amount: 8_450},
			{UpTo: Bound(800_000), Amount: 9_750},
			{UpTo: Bound(900_000), Amount: 11_050},
			{UpTo: Bound(1_000_000), Amount: 12_350},
			{Amount: 13_000},
		},
		// Levy B is keyed on the income tax amount: 10% of IRPP.
		LevyBBands: []Band{
			{Rate: decimal.RequireFromString("0.10")},
		},
		PayrollTaxRateEmployee: decimal.RequireFromString("0.01"),
		PayrollTaxRateEmployer: decimal.RequireFromString("0.01"),
		EmployerSurchargeRate:  decimal.RequireFromString("0.015"),
		SurchargeRate:          decimal.RequireFromString("0.10"),
	}
}

// Bound returns a pointer bound for bracket and band tables.
func Bound(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

// Clone returns a deep copy so a batch can hold a snapshot that later
// configuration reloads cannot touch.
func (p FiscalParameters) Clone() FiscalParameters {
	out := p
	out.RiskRateByCategory = make(map[string]decimal.Decimal, len(p.RiskRateByCategory))
	for k, v := range p.RiskRateByCategory {
		out.RiskRateByCategory[k] = v
	}
	out.IncomeTaxBrackets = make([]Bracket, len(p.IncomeTaxBrackets))
	for i, b := range p.IncomeTaxBrackets {
		out.IncomeTaxBrackets[i] = Bracket{Lower: b.Lower, Upper: cloneBound(b.Upper), Rate: b.Rate}
	}
	out.LevyABands = cloneBands(p.LevyABands)
	out.LevyBBands = cloneBands(p.LevyBBands)
	return out
}

func cloneBands(bands []Band) []Band {
	out := make([]Band, len(bands))
	for i, b := range bands {
		out[i] = Band{UpTo: cloneBound(b.UpTo), Amount: b.Amount, Rate: b.Rate}
	}
	return out
}

func cloneBound(b *decimal.Decimal) *decimal.Decimal {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

// Validate checks the structural invariants of the parameter set.
func (p FiscalParameters) Validate() error {
	if p.ContributableBaseCap <= 0 {
		return fmt.Errorf("%w: contributable base cap must be positive", ErrInvalidFiscalParams)
	}
	rates := map[string]decimal.Decimal{
		"employeePensionRate":     p.EmployeePensionRate,
		"employerPensionRate":     p.EmployerPensionRate,
		"familyBenefitRate":       p.FamilyBenefitRate,
		"professionalExpenseRate": p.ProfessionalExpenseRate,
		"payrollTaxRateEmployee":  p.PayrollTaxRateEmployee,
		"payrollTaxRateEmployer":  p.PayrollTaxRateEmployer,
		"employerSurchargeRate":   p.EmployerSurchargeRate,
		"surchargeRate":           p.SurchargeRate,
	}
	for category, rate := range p.RiskRateByCategory {
		rates["riskRateByCategory."+category] = rate
	}
	names := make([]string, 0, len(rates))
	for name := range rates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !validRate(rates[name]) {
			return fmt.Errorf("%w: %s must be within [0,1]", ErrInvalidFiscalParams, name)
		}
	}
	if len(p.RiskRateByCategory) == 0 {
		return fmt.Errorf("%w: at least one risk category is required", ErrInvalidFiscalParams)
	}
	if p.MonthlyAbatement.IsNegative() {
		return fmt.Errorf("%w: monthly abatement must not be negative", ErrInvalidFiscalParams)
	}
	if err := validateBrackets(p.IncomeTaxBrackets); err != nil {
		return err
	}
	if err := validateBands("levyABands", p.LevyABands); err != nil {
		return err
	}
	return validateBands("levyBBands", p.LevyBBands)
}

func validRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(decimal.NewFromInt(1))
}

func validateBrackets(brackets []Bracket) error {
	if len(brackets) == 0 {
		return fmt.Errorf("%w: income tax brackets are required", ErrInvalidFiscalParams)
	}
	if brackets[0].Lower.IsNegative() {
		return fmt.Errorf("%w: first bracket must start at or above zero", ErrInvalidFiscalParams)
	}
	for i, b := range brackets {
		if !validRate(b.Rate) {
			return fmt.Errorf("%w: bracket %d rate must be within [0,1]", ErrInvalidFiscalParams, i)
		}
		last := i == len(brackets)-1
		if last != (b.Upper == nil) {
			return fmt.Errorf("%w: only the last bracket may be unbounded", ErrInvalidFiscalParams)
		}
		if b.Upper != nil && !b.Upper.GreaterThan(b.Lower) {
			return fmt.Errorf("%w: bracket %d upper bound must exceed its lower bound", ErrInvalidFiscalParams, i)
		}
		if i > 0 && !b.Lower.Equal(*brackets[i-1].Upper) {
			return fmt.Errorf("%w: bracket %d must start where bracket %d ends", ErrInvalidFiscalParams, i, i-1)
		}
	}
	return nil
}

func validateBands(name string, bands []Band) error {
	if len(bands) == 0 {
		return fmt.Errorf("%w: %s are required", ErrInvalidFiscalParams, name)
	}
	for i, b := range bands {
		if b.Amount < 0 {
			return fmt.Errorf("%w: %s[%d] amount must not be negative", ErrInvalidFiscalParams, name, i)
		}
		if !validRate(b.Rate) {
			return fmt.Errorf("%w: %s[%d] rate must be within [0,1]", ErrInvalidFiscalParams, name, i)
		}
		last := i == len(bands)-1
		if last != (b.UpTo == nil) {
			return fmt.Errorf("%w: only the last of %s may be unbounded", ErrInvalidFiscalParams, name)
		}
		if i > 0 && b.UpTo != nil && !b.UpTo.GreaterThan(*bands[i-1].UpTo) {
			return fmt.Errorf("%w: %s must increase strictly", ErrInvalidFiscalParams, name)
		}
	}
	return nil
}

// RiskRateFor resolves a risk category to its rate. Unknown or empty
// categories resolve to the lowest configured rate; ok reports whether the
// category was recognized.
func (p FiscalParameters) RiskRateFor(category string) (rate decimal.Decimal, ok bool) {
	key := strings.ToUpper(strings.TrimSpace(category))
	if rate, found := p.RiskRateByCategory[key]; found {
		return rate, true
	}
	return p.lowestRiskRate(), false
}

func (p FiscalParameters) lowestRiskRate() decimal.Decimal {
	first := true
	lowest := decimal.Zero
	for _, rate := range p.RiskRateByCategory {
		if first || rate.LessThan(lowest) {
			lowest = rate
			first = false
		}
	}
	return lowest
}
