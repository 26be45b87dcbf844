package payroll

import (
	"fmt"
	"strconv"
	"strings"
)

// Field widths of a declaration identifier. Downstream parsers split the
// identifier on these widths, so they must not change.
const (
	declMonthWidth      = 2
	declEmployerIDWidth = 14
	declRegimeWidth     = 1
	declYearWidth       = 4
	declEmployeeIDWidth = 14
	declWorkedDaysWidth = 2

	DeclarationIDLength = declMonthWidth + declEmployerIDWidth + declRegimeWidth +
		declYearWidth + declEmployeeIDWidth + declWorkedDaysWidth
)

var regimeCodes = map[string]string{
	RiskCategoryA: "1",
	RiskCategoryB: "2",
	RiskCategoryC: "3",
}

// RegimeCode maps a risk category to its one-character regime code,
// defaulting to the lowest risk class.
func RegimeCode(riskCategory string) string {
	if code, ok := regimeCodes[strings.ToUpper(strings.TrimSpace(riskCategory))]; ok {
		return code
	}
	return regimeCodes[RiskCategoryA]
}

// BuildDeclarationID concatenates month, employer id, regime code, year,
// employee id and worked days, each left-padded with zeros to its fixed
// width. A value wider than its field is rejected rather than truncated.
// Identifier fields take digits and upper-case letters only; lower-case
// input is rejected so that distinct ids never map to the same field.
func BuildDeclarationID(month int, employerID, regimeCode string, year int, employeeID string, workedDays int) (string, error) {
	if month < 1 || month > 12 {
		return "", fmt.Errorf("%w: month %d out of range", ErrDeclarationField, month)
	}
	if year < 1000 || year > 9999 {
		return "", fmt.Errorf("%w: year %d must have four digits", ErrDeclarationField, year)
	}
	if workedDays < 0 || workedDays > 99 {
		return "", fmt.Errorf("%w: worked days %d out of range", ErrDeclarationField, workedDays)
	}

	employer, err := padField("employer id", employerID, declEmployerIDWidth)
	if err != nil {
		return "", err
	}
	regime, err := padField("regime code", regimeCode, declRegimeWidth)
	if err != nil {
		return "", err
	}
	employee, err := padField("employee id", employeeID, declEmployeeIDWidth)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(DeclarationIDLength)
	b.WriteString(padNumber(month, declMonthWidth))
	b.WriteString(employer)
	b.WriteString(regime)
	b.WriteString(padNumber(year, declYearWidth))
	b.WriteString(employee)
	b.WriteString(padNumber(workedDays, declWorkedDaysWidth))
	return b.String(), nil
}

// DeclarationIDFor builds the identifier of a compensation record.
func DeclarationIDFor(record CompensationRecord) (string, error) {
	return BuildDeclarationID(
		record.PeriodMonth,
		record.EmployerTaxID,
		RegimeCode(record.RiskCategory),
		record.PeriodYear,
		record.EmployeeTaxID,
		record.WorkedDays,
	)
}

func padField(name, value string, width int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s is required", ErrDeclarationField, name)
	}
	if len(value) > width {
		return "", fmt.Errorf("%w: %s %q exceeds %d characters", ErrDeclarationField, name, value, width)
	}
	for _, r := range value {
		if (r < '0' || r > '9') && (r < 'A' || r > 'Z') {
			return "", fmt.Errorf("%w: %s %q must be digits or upper-case letters", ErrDeclarationField, name, value)
		}
	}
	return strings.Repeat("0", width-len(value)) + value, nil
}

func padNumber(v, width int) string {
	s := strconv.Itoa(v)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
