package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"statpay/internal/domain/payroll"
)

var amounts = message.NewPrinter(language.English)

func amount(v int64) string {
	return amounts.Sprintf("%d", v)
}

// RenderDeclarationPDF lays out the monthly declaration: one line per
// employee, then the employer totals.
func RenderDeclarationPDF(run payroll.RunSummary, batch payroll.DeclarationBatch) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, fmt.Sprintf("Monthly declaration %02d/%d", batch.PeriodMonth, batch.PeriodYear))
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Employer: %s    Run: %s    Parameters: %s", run.EmployerTaxID, run.ID, batch.ParamsVersion))
	pdf.Ln(10)

	headers := []string{"Employee", "Declaration ID", "Taxable", "Contributable", "Employee ded.", "Employer ch.", "Gross", "Net"}
	widths := []float64{30, 75, 25, 25, 28, 28, 28, 28}
	pdf.SetFont("Helvetica", "B", 9)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, entry := range batch.Entries {
		pdf.CellFormat(widths[0], 6, tr(entry.EmployeeID), "1", 0, "L", false, 0, "")
		if entry.Result == nil {
			pdf.CellFormat(sum(widths[1:]), 6, tr(entry.Error), "1", 0, "L", false, 0, "")
			pdf.Ln(-1)
			continue
		}
		r := entry.Result
		pdf.CellFormat(widths[1], 6, entry.DeclarationID, "1", 0, "L", false, 0, "")
		for i, v := range []int64{r.TaxableBase, r.ContributableBase, r.EmployeeDeductions.Total, r.EmployerCharges.Total, r.GrossTotal, r.NetPay} {
			pdf.CellFormat(widths[i+2], 6, amount(v), "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}

	t := batch.Totals
	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(widths[0]+widths[1], 7, fmt.Sprintf("Total (%d employees)", t.EmployeeCount), "1", 0, "L", false, 0, "")
	for i, v := range []int64{t.TaxableBase, t.ContributableBase, t.EmployeeDeductions.Total, t.EmployerCharges.Total, t.GrossTotal, t.NetPay} {
		pdf.CellFormat(widths[i+2], 7, amount(v), "1", 0, "R", false, 0, "")
	}
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 7, "Amounts due")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	lines := []struct {
		label string
		value int64
	}{
		{"Pension (employee + employer)", t.EmployeeDeductions.Pension + t.EmployerCharges.Pension},
		{"Family benefits", t.EmployerCharges.FamilyBenefit},
		{"Occupational risk", t.EmployerCharges.OccupationalRisk},
		{"Income tax", t.EmployeeDeductions.IncomeTax},
		{"Income tax surcharge", t.EmployeeDeductions.IncomeTaxSurcharge},
		{"Payroll tax (employee + employer)", t.EmployeeDeductions.PayrollTaxEmployee + t.EmployerCharges.PayrollTaxEmployer},
		{"Employer payroll surcharge", t.EmployerCharges.PayrollSurchargeEmployer},
		{"Levy A", t.EmployeeDeductions.LevyA},
		{"Levy B", t.EmployeeDeductions.LevyB},
	}
	for _, line := range lines {
		pdf.CellFormat(90, 6, line.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, amount(line.value), "", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	return output(pdf)
}

// RenderPayslipPDF lays out a single payslip.
func RenderPayslipPDF(record payroll.CompensationRecord, result payroll.CalculationResult) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payslip")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, tr(fmt.Sprintf("Employee: %s (%s)", record.EmployeeID, record.EmployeeTaxID)))
	pdf.Ln(6)
	pdf.Cell(0, 7, tr(fmt.Sprintf("Employer: %s", record.EmployerTaxID)))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Period: %02d/%d    Worked days: %d", record.PeriodMonth, record.PeriodYear, record.WorkedDays))
	pdf.Ln(10)

	row := func(label, value string) {
		pdf.CellFormat(100, 6, tr(label), "", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, value, "", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	section := func(title string) {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 7, title)
		pdf.Ln(7)
		pdf.SetFont("Helvetica", "", 10)
	}

	section("Earnings")
	row("Base salary", record.BaseSalary.StringFixed(0))
	for _, item := range record.LineItems {
		row(item.Label, item.Amount.StringFixed(0))
	}
	if !record.TransportAllowance.IsZero() {
		row("Transport allowance", record.TransportAllowance.StringFixed(0))
	}
	if !record.HousingAllowance.IsZero() {
		row("Housing allowance", record.HousingAllowance.StringFixed(0))
	}
	row("Gross", amount(result.GrossTotal))

	section("Deductions")
	d := result.EmployeeDeductions
	row("Pension", amount(d.Pension))
	row("Income tax", amount(d.IncomeTax))
	row("Income tax surcharge", amount(d.IncomeTaxSurcharge))
	row("Payroll tax", amount(d.PayrollTaxEmployee))
	row("Levy A", amount(d.LevyA))
	row("Levy B", amount(d.LevyB))
	row("Total deductions", amount(d.Total))

	section("Employer charges")
	c := result.EmployerCharges
	row("Pension", amount(c.Pension))
	row("Family benefits", amount(c.FamilyBenefit))
	row("Occupational risk", amount(c.OccupationalRisk))
	row("Payroll tax", amount(c.PayrollTaxEmployer))
	row("Payroll surcharge", amount(c.PayrollSurchargeEmployer))
	row("Total charges", amount(c.Total))

	section("Net pay")
	pdf.SetFont("Helvetica", "B", 12)
	row("Net pay", amount(result.NetPay))

	if len(result.Warnings) > 0 {
		section("Warnings")
		for _, w := range result.Warnings {
			pdf.MultiCell(0, 5, tr(w.Message), "", "L", false)
		}
	}
	return output(pdf)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
