package payroll

import "github.com/shopspring/decimal"

// ComputeBases derives the taxable base (SBT) and the capped contributable
// base (SBC). The cap applies once, after summation.
func ComputeBases(baseSalary decimal.Decimal, earnings CategorizedEarnings, params FiscalParameters) WageBases {
	taxable := nonNegative(baseSalary).Add(nonNegative(earnings.Taxable))
	taxableBase := roundUnit(taxable)

	contributable := decimal.NewFromInt(taxableBase).Add(nonNegative(earnings.ContributionOnly))
	contributableBase := roundUnit(contributable)
	if contributableBase > params.ContributableBaseCap {
		contributableBase = params.ContributableBaseCap
	}

	return WageBases{TaxableBase: taxableBase, ContributableBase: contributableBase}
}

// roundUnit rounds half away from zero to a whole currency unit.
func roundUnit(v decimal.Decimal) int64 {
	return v.Round(0).IntPart()
}

// applyRate is round(base × rate), never below zero.
func applyRate(base int64, rate decimal.Decimal) int64 {
	if base <= 0 || !rate.IsPositive() {
		return 0
	}
	return roundUnit(decimal.NewFromInt(base).Mul(rate))
}
