package payroll

import "github.com/shopspring/decimal"

// GrossEarnings sums the base salary, every line item and the named
// allowances, whatever their bucket.
func GrossEarnings(record CompensationRecord) decimal.Decimal {
	gross := nonNegative(record.BaseSalary)
	for _, item := range record.LineItems {
		gross = gross.Add(nonNegative(item.Amount))
	}
	gross = gross.Add(nonNegative(record.TransportAllowance))
	return gross.Add(nonNegative(record.HousingAllowance))
}

// ComputeNetPay subtracts the employee deductions from gross pay. A negative
// result is returned unchanged so the caller can flag it.
func ComputeNetPay(gross decimal.Decimal, deductions EmployeeDeductions) NetPay {
	grossTotal := roundUnit(nonNegative(gross))
	return NetPay{
		GrossTotal: grossTotal,
		NetPay:     grossTotal - deductions.Total,
	}
}
