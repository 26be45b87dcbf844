package export

import "statpay/internal/domain/payroll"

// Renderer adapts the package functions to payroll.Renderer.
type Renderer struct{}

func (Renderer) DeclarationCSV(_ payroll.RunSummary, batch payroll.DeclarationBatch) ([]byte, error) {
	return declarationCSV(batch)
}

func (Renderer) DeclarationPDF(run payroll.RunSummary, batch payroll.DeclarationBatch) ([]byte, error) {
	return RenderDeclarationPDF(run, batch)
}

func (Renderer) PayslipPDF(record payroll.CompensationRecord, result payroll.CalculationResult) ([]byte, error) {
	return RenderPayslipPDF(record, result)
}

var _ payroll.Renderer = Renderer{}
