package payroll

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSnapshot(t *testing.T, params FiscalParameters) PayslipSnapshot {
	t.Helper()
	record := sampleRecord()
	snapshot, err := NewSnapshot(record, ComputeForEmployee(record, params), params.Version, time.Date(2024, 3, 31, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return snapshot
}

func TestResolveSnapshotReusesIntactSnapshot(t *testing.T) {
	params := DefaultFiscalParameters()
	snapshot := newTestSnapshot(t, params)

	result, err := ResolveSnapshot(snapshot, params)
	require.NoError(t, err)
	assert.Equal(t, ComputeForEmployee(snapshot.Record, params), result)
}

func TestResolveSnapshotSurvivesJSONRoundTrip(t *testing.T) {
	params := DefaultFiscalParameters()
	raw, err := json.Marshal(newTestSnapshot(t, params))
	require.NoError(t, err)

	var decoded PayslipSnapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))

	_, err = ResolveSnapshot(decoded, params)
	assert.NoError(t, err)
}

func TestResolveSnapshotDetectsParameterChange(t *testing.T) {
	params := DefaultFiscalParameters()
	snapshot := newTestSnapshot(t, params)

	changed := params.Clone()
	changed.Version = "2025-01"
	changed.EmployeePensionRate = decimal.RequireFromString("0.05")

	result, err := ResolveSnapshot(snapshot, changed)
	assert.True(t, errors.Is(err, ErrSnapshotStale))
	assert.Equal(t, ComputeForEmployee(snapshot.Record, changed), result)
	assert.NotEqual(t, snapshot.Result.EmployeeDeductions.Pension, result.EmployeeDeductions.Pension)
}

func TestResolveSnapshotDetectsDriftUnderSameVersion(t *testing.T) {
	params := DefaultFiscalParameters()
	snapshot := newTestSnapshot(t, params)

	changed := params.Clone()
	changed.FamilyBenefitRate = decimal.RequireFromString("0.08")

	result, err := ResolveSnapshot(snapshot, changed)
	assert.True(t, errors.Is(err, ErrSnapshotStale))
	assert.Equal(t, int64(6_800), result.EmployerCharges.FamilyBenefit)
}

func TestResolveSnapshotRejectsTampering(t *testing.T) {
	params := DefaultFiscalParameters()
	snapshot := newTestSnapshot(t, params)
	snapshot.Result.NetPay += 1_000

	result, err := ResolveSnapshot(snapshot, params)
	assert.True(t, errors.Is(err, ErrSnapshotInvalid))
	assert.Equal(t, int64(133_118), result.NetPay)
}

func TestResolveSnapshotRejectsForeignLayout(t *testing.T) {
	params := DefaultFiscalParameters()

	wrongVersion := newTestSnapshot(t, params)
	wrongVersion.Version = SnapshotVersion + 1
	_, err := ResolveSnapshot(wrongVersion, params)
	assert.True(t, errors.Is(err, ErrSnapshotInvalid))

	wrongPeriod := newTestSnapshot(t, params)
	wrongPeriod.PeriodMonth = 4
	_, err = ResolveSnapshot(wrongPeriod, params)
	assert.True(t, errors.Is(err, ErrSnapshotInvalid))
}

func TestSnapshotCalculatorMatchesDirectComputation(t *testing.T) {
	params := DefaultFiscalParameters()
	records := batchRecords()

	intact := newTestSnapshot(t, params)
	tampered := newTestSnapshot(t, params)
	tampered.Result.EmployeeDeductions.IncomeTax = 0

	cases := []struct {
		name         string
		snapshots    map[string]PayslipSnapshot
		wantRejected []string
	}{
		{"intact", map[string]PayslipSnapshot{"emp-1": intact}, nil},
		{"tampered", map[string]PayslipSnapshot{"emp-1": tampered}, []string{"emp-1"}},
		{"none", map[string]PayslipSnapshot{}, nil},
	}
	direct, err := json.Marshal(ComputeBatch(records, params))
	require.NoError(t, err)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var rejected []string
			calc := SnapshotCalculator(tc.snapshots, func(employeeID string, _ error) {
				rejected = append(rejected, employeeID)
			})
			reused, err := json.Marshal(ComputeBatchWith(records, params, calc))
			require.NoError(t, err)
			assert.JSONEq(t, string(direct), string(reused))
			assert.Equal(t, tc.wantRejected, rejected)
		})
	}
}

func TestSnapshotCalculatorIgnoresChangedRecord(t *testing.T) {
	params := DefaultFiscalParameters()
	snapshot := newTestSnapshot(t, params)

	record := sampleRecord()
	record.BaseSalary = decimal.NewFromInt(90_000)

	called := false
	calc := SnapshotCalculator(map[string]PayslipSnapshot{record.EmployeeID: snapshot}, func(string, error) { called = true })
	assert.Equal(t, ComputeForEmployee(record, params), calc(record, params))
	assert.False(t, called)
}
