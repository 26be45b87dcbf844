package payroll

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFiscalParametersAreValid(t *testing.T) {
	require.NoError(t, DefaultFiscalParameters().Validate())
}

func TestFiscalParametersValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(p *FiscalParameters)
	}{
		{"zero cap", func(p *FiscalParameters) { p.ContributableBaseCap = 0 }},
		{"rate above one", func(p *FiscalParameters) { p.FamilyBenefitRate = decimal.RequireFromString("1.2") }},
		{"negative risk rate", func(p *FiscalParameters) { p.RiskRateByCategory["B"] = decimal.RequireFromString("-0.01") }},
		{"no risk categories", func(p *FiscalParameters) { p.RiskRateByCategory = nil }},
		{"negative abatement", func(p *FiscalParameters) { p.MonthlyAbatement = decimal.NewFromInt(-1) }},
		{"bracket gap", func(p *FiscalParameters) { p.IncomeTaxBrackets[1].Lower = decimal.NewFromInt(170_000) }},
		{"bounded last bracket", func(p *FiscalParameters) { p.IncomeTaxBrackets[3].Upper = Bound(900_000) }},
		{"no brackets", func(p *FiscalParameters) { p.IncomeTaxBrackets = nil }},
		{"bands not increasing", func(p *FiscalParameters) { p.LevyABands[2].UpTo = Bound(100_000) }},
		{"negative band amount", func(p *FiscalParameters) { p.LevyABands[0].Amount = -1 }},
		{"unbounded middle band", func(p *FiscalParameters) { p.LevyABands[3].UpTo = nil }},
		{"band rate above one", func(p *FiscalParameters) { p.LevyBBands[0].Rate = decimal.RequireFromString("1.5") }},
		{"no levy b bands", func(p *FiscalParameters) { p.LevyBBands = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultFiscalParameters()
			tc.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFiscalParams))
		})
	}
}

func TestFiscalParametersCloneIsDeep(t *testing.T) {
	p := DefaultFiscalParameters()
	c := p.Clone()

	c.RiskRateByCategory[RiskCategoryA] = decimal.RequireFromString("0.5")
	*c.IncomeTaxBrackets[0].Upper = decimal.NewFromInt(1)
	c.LevyABands[0].Amount = 99

	assert.Equal(t, "0.0175", p.RiskRateByCategory[RiskCategoryA].String())
	assert.True(t, p.IncomeTaxBrackets[0].Upper.Equal(decimal.NewFromInt(166_667)))
	assert.Zero(t, p.LevyABands[0].Amount)
}
