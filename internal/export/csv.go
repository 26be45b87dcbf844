package export

import (
	"bytes"
	"io"

	"github.com/gocarina/gocsv"

	"statpay/internal/domain/payroll"
)

// DeclarationRow is one line of the declaration spreadsheet. Failed entries
// keep their identifiers and carry the error with zero amounts.
type DeclarationRow struct {
	EmployeeID               string `csv:"employee_id"`
	EmployeeTaxID            string `csv:"employee_tax_id"`
	DeclarationID            string `csv:"declaration_id"`
	TaxableBase              int64  `csv:"taxable_base"`
	ContributableBase        int64  `csv:"contributable_base"`
	EmployeePension          int64  `csv:"employee_pension"`
	IncomeTax                int64  `csv:"income_tax"`
	IncomeTaxSurcharge       int64  `csv:"income_tax_surcharge"`
	PayrollTaxEmployee       int64  `csv:"payroll_tax_employee"`
	LevyA                    int64  `csv:"levy_a"`
	LevyB                    int64  `csv:"levy_b"`
	EmployeeTotal            int64  `csv:"employee_total"`
	EmployerPension          int64  `csv:"employer_pension"`
	FamilyBenefit            int64  `csv:"family_benefit"`
	OccupationalRisk         int64  `csv:"occupational_risk"`
	PayrollTaxEmployer       int64  `csv:"payroll_tax_employer"`
	PayrollSurchargeEmployer int64  `csv:"payroll_surcharge_employer"`
	EmployerTotal            int64  `csv:"employer_total"`
	GrossTotal               int64  `csv:"gross_total"`
	NetPay                   int64  `csv:"net_pay"`
	Error                    string `csv:"error"`
}

func DeclarationRows(batch payroll.DeclarationBatch) []*DeclarationRow {
	rows := make([]*DeclarationRow, 0, len(batch.Entries))
	for _, entry := range batch.Entries {
		row := &DeclarationRow{
			EmployeeID:    entry.EmployeeID,
			EmployeeTaxID: entry.EmployeeTaxID,
			DeclarationID: entry.DeclarationID,
			Error:         entry.Error,
		}
		if r := entry.Result; r != nil {
			row.TaxableBase = r.TaxableBase
			row.ContributableBase = r.ContributableBase
			row.EmployeePension = r.EmployeeDeductions.Pension
			row.IncomeTax = r.EmployeeDeductions.IncomeTax
			row.IncomeTaxSurcharge = r.EmployeeDeductions.IncomeTaxSurcharge
			row.PayrollTaxEmployee = r.EmployeeDeductions.PayrollTaxEmployee
			row.LevyA = r.EmployeeDeductions.LevyA
			row.LevyB = r.EmployeeDeductions.LevyB
			row.EmployeeTotal = r.EmployeeDeductions.Total
			row.EmployerPension = r.EmployerCharges.Pension
			row.FamilyBenefit = r.EmployerCharges.FamilyBenefit
			row.OccupationalRisk = r.EmployerCharges.OccupationalRisk
			row.PayrollTaxEmployer = r.EmployerCharges.PayrollTaxEmployer
			row.PayrollSurchargeEmployer = r.EmployerCharges.PayrollSurchargeEmployer
			row.EmployerTotal = r.EmployerCharges.Total
			row.GrossTotal = r.GrossTotal
			row.NetPay = r.NetPay
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteDeclarationCSV writes one row per entry followed by a TOTAL row.
func WriteDeclarationCSV(w io.Writer, batch payroll.DeclarationBatch) error {
	rows := DeclarationRows(batch)
	t := batch.Totals
	rows = append(rows, &DeclarationRow{
		EmployeeID:               "TOTAL",
		TaxableBase:              t.TaxableBase,
		ContributableBase:        t.ContributableBase,
		EmployeePension:          t.EmployeeDeductions.Pension,
		IncomeTax:                t.EmployeeDeductions.IncomeTax,
		IncomeTaxSurcharge:       t.EmployeeDeductions.IncomeTaxSurcharge,
		PayrollTaxEmployee:       t.EmployeeDeductions.PayrollTaxEmployee,
		LevyA:                    t.EmployeeDeductions.LevyA,
		LevyB:                    t.EmployeeDeductions.LevyB,
		EmployeeTotal:            t.EmployeeDeductions.Total,
		EmployerPension:          t.EmployerCharges.Pension,
		FamilyBenefit:            t.EmployerCharges.FamilyBenefit,
		OccupationalRisk:         t.EmployerCharges.OccupationalRisk,
		PayrollTaxEmployer:       t.EmployerCharges.PayrollTaxEmployer,
		PayrollSurchargeEmployer: t.EmployerCharges.PayrollSurchargeEmployer,
		EmployerTotal:            t.EmployerCharges.Total,
		GrossTotal:               t.GrossTotal,
		NetPay:                   t.NetPay,
	})
	return gocsv.Marshal(rows, w)
}

func declarationCSV(batch payroll.DeclarationBatch) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteDeclarationCSV(&buf, batch); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
