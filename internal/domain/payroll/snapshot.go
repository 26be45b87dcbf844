package payroll

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SnapshotVersion is the layout version written into new snapshots.
const SnapshotVersion = 1

// PayslipSnapshot is the cached "last payslip" of an employee. It is treated
// as untrusted when read back: ResolveSnapshot re-validates it.
type PayslipSnapshot struct {
	Version       int                `json:"version"`
	EmployeeID    string             `json:"employeeId"`
	PeriodMonth   int                `json:"periodMonth"`
	PeriodYear    int                `json:"periodYear"`
	ParamsVersion string             `json:"paramsVersion"`
	Record        CompensationRecord `json:"record"`
	Result        CalculationResult  `json:"result"`
	Checksum      string             `json:"checksum"`
	CapturedAt    time.Time          `json:"capturedAt"`
}

func NewSnapshot(record CompensationRecord, result CalculationResult, paramsVersion string, capturedAt time.Time) (PayslipSnapshot, error) {
	snapshot := PayslipSnapshot{
		Version:       SnapshotVersion,
		EmployeeID:    record.EmployeeID,
		PeriodMonth:   record.PeriodMonth,
		PeriodYear:    record.PeriodYear,
		ParamsVersion: paramsVersion,
		Record:        record,
		Result:        result,
		CapturedAt:    capturedAt.UTC(),
	}
	sum, err := snapshot.checksum()
	if err != nil {
		return PayslipSnapshot{}, err
	}
	snapshot.Checksum = sum
	return snapshot, nil
}

func (s PayslipSnapshot) checksum() (string, error) {
	payload, err := json.Marshal(struct {
		Version       int                `json:"version"`
		EmployeeID    string             `json:"employeeId"`
		PeriodMonth   int                `json:"periodMonth"`
		PeriodYear    int                `json:"periodYear"`
		ParamsVersion string             `json:"paramsVersion"`
		Record        CompensationRecord `json:"record"`
		Result        CalculationResult  `json:"result"`
	}{s.Version, s.EmployeeID, s.PeriodMonth, s.PeriodYear, s.ParamsVersion, s.Record, s.Result})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Covers reports whether the snapshot belongs to the employee and period.
func (s PayslipSnapshot) Covers(employeeID string, month, year int) bool {
	return s.EmployeeID == employeeID && s.PeriodMonth == month && s.PeriodYear == year
}

// ResolveSnapshot re-validates a cached payslip against params. The returned
// result always equals ComputeForEmployee(snapshot.Record, params):
//   - nil error: the stored result is intact and current;
//   - ErrSnapshotStale: parameters or stored figures drifted, the fresh result is returned;
//   - ErrSnapshotInvalid: the snapshot cannot be trusted; a fresh result is
//     returned when the record itself is usable, otherwise a zero result.
func ResolveSnapshot(snapshot PayslipSnapshot, params FiscalParameters) (CalculationResult, error) {
	if snapshot.Version != SnapshotVersion {
		return CalculationResult{}, fmt.Errorf("%w: unsupported version %d", ErrSnapshotInvalid, snapshot.Version)
	}
	if strings.TrimSpace(snapshot.EmployeeID) == "" || snapshot.Record.EmployeeID != snapshot.EmployeeID {
		return CalculationResult{}, fmt.Errorf("%w: employee id mismatch", ErrSnapshotInvalid)
	}
	if snapshot.Record.PeriodMonth != snapshot.PeriodMonth || snapshot.Record.PeriodYear != snapshot.PeriodYear {
		return CalculationResult{}, fmt.Errorf("%w: period mismatch", ErrSnapshotInvalid)
	}

	fresh := ComputeForEmployee(snapshot.Record, params)

	sum, err := snapshot.checksum()
	if err != nil || sum != snapshot.Checksum {
		return fresh, fmt.Errorf("%w: checksum mismatch", ErrSnapshotInvalid)
	}
	if snapshot.ParamsVersion != params.Version {
		return fresh, fmt.Errorf("%w: captured under %q, current %q", ErrSnapshotStale, snapshot.ParamsVersion, params.Version)
	}
	if !sameResult(snapshot.Result, fresh) {
		return fresh, fmt.Errorf("%w: stored figures differ from recomputation", ErrSnapshotStale)
	}
	return snapshot.Result, nil
}

// SnapshotCalculator returns a Calculator that serves records from their
// validated snapshot when one covers the record unchanged, and computes them
// otherwise. onReject, when set, receives every snapshot that was not reused.
func SnapshotCalculator(snapshots map[string]PayslipSnapshot, onReject func(employeeID string, err error)) Calculator {
	return func(record CompensationRecord, params FiscalParameters) CalculationResult {
		snapshot, ok := snapshots[record.EmployeeID]
		if !ok || !snapshot.Covers(record.EmployeeID, record.PeriodMonth, record.PeriodYear) || !sameRecord(snapshot.Record, record) {
			return ComputeForEmployee(record, params)
		}
		result, err := ResolveSnapshot(snapshot, params)
		if err != nil {
			if onReject != nil {
				onReject(record.EmployeeID, err)
			}
			return ComputeForEmployee(record, params)
		}
		return result
	}
}

func sameResult(a, b CalculationResult) bool {
	return sameJSON(a, b)
}

func sameRecord(a, b CompensationRecord) bool {
	return sameJSON(a, b)
}

func sameJSON(a, b any) bool {
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}
