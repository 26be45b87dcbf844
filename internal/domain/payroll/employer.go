package payroll

// ComputeEmployerCharges computes the employer-side contributions. An unknown
// risk category is charged at the lowest configured rate.
func ComputeEmployerCharges(bases WageBases, riskCategory string, params FiscalParameters) EmployerCharges {
	riskRate, _ := params.RiskRateFor(riskCategory)

	var c EmployerCharges
	c.Pension = applyRate(bases.ContributableBase, params.EmployerPensionRate)
	c.FamilyBenefit = applyRate(bases.ContributableBase, params.FamilyBenefitRate)
	c.OccupationalRisk = applyRate(bases.ContributableBase, riskRate)
	c.PayrollTaxEmployer = applyRate(bases.TaxableBase, params.PayrollTaxRateEmployer)
	c.PayrollSurchargeEmployer = applyRate(bases.TaxableBase, params.EmployerSurchargeRate)

	c.Total = c.Sum()
	return c
}

func (c EmployerCharges) Sum() int64 {
	return c.Pension + c.FamilyBenefit + c.OccupationalRisk + c.PayrollTaxEmployer + c.PayrollSurchargeEmployer
}
