package payroll

import "github.com/shopspring/decimal"

// ComputeEmployeeDeductions computes the employee-side withholdings. Each
// component is rounded on its own; Total is their plain sum. Levy A is keyed
// on the taxable base and Levy B on the income tax amount.
func ComputeEmployeeDeductions(bases WageBases, params FiscalParameters) EmployeeDeductions {
	var d EmployeeDeductions
	d.Pension = applyRate(bases.ContributableBase, params.EmployeePensionRate)

	if bases.TaxableBase >= params.IncomeTaxThreshold {
		d.IncomeTax = IncomeTax(NetTaxableIncome(bases.TaxableBase, d.Pension, params), params.IncomeTaxBrackets)
	}
	d.IncomeTaxSurcharge = applyRate(d.IncomeTax, params.SurchargeRate)
	d.PayrollTaxEmployee = applyRate(bases.TaxableBase, params.PayrollTaxRateEmployee)
	d.LevyA = LookupBand(decimal.NewFromInt(bases.TaxableBase), params.LevyABands)
	d.LevyB = LookupBand(decimal.NewFromInt(d.IncomeTax), params.LevyBBands)

	d.Total = d.Sum()
	return d
}

// Sum adds the already rounded components; no rounding happens here.
func (d EmployeeDeductions) Sum() int64 {
	return d.Pension + d.IncomeTax + d.IncomeTaxSurcharge + d.PayrollTaxEmployee + d.LevyA + d.LevyB
}

// NetTaxableIncome is max(0, (1 - professional expense rate) × SBT - pension - abatement).
func NetTaxableIncome(taxableBase, pension int64, params FiscalParameters) decimal.Decimal {
	share := decimal.NewFromInt(1).Sub(params.ProfessionalExpenseRate)
	net := decimal.NewFromInt(taxableBase).Mul(share).
		Sub(decimal.NewFromInt(pension)).
		Sub(params.MonthlyAbatement)
	if net.IsNegative() {
		return decimal.Zero
	}
	return net
}

// IncomeTax integrates the marginal brackets over income and rounds the sum
// to a whole unit.
func IncomeTax(income decimal.Decimal, brackets []Bracket) int64 {
	if !income.IsPositive() {
		return 0
	}
	total := decimal.Zero
	for _, bracket := range brackets {
		if income.LessThanOrEqual(bracket.Lower) {
			break
		}
		top := income
		if bracket.Upper != nil {
			top = decimal.Min(income, *bracket.Upper)
		}
		slice := top.Sub(bracket.Lower)
		if slice.IsPositive() {
			total = total.Add(slice.Mul(bracket.Rate))
		}
	}
	return roundUnit(total)
}

// LookupBand returns the levy of the band containing value. Values past
// every bounded band fall into the last one.
func LookupBand(value decimal.Decimal, bands []Band) int64 {
	value = nonNegative(value)
	for _, band := range bands {
		if band.UpTo == nil || value.LessThanOrEqual(*band.UpTo) {
			levy := band.Amount
			if band.Rate.IsPositive() {
				levy += roundUnit(value.Mul(band.Rate))
			}
			return levy
		}
	}
	return 0
}
