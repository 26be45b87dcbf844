package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func cachedSnapshot(t *testing.T) (PayslipSnapshot, string) {
	t.Helper()
	params := DefaultFiscalParameters()
	record := sampleRecord()
	snapshot, err := NewSnapshot(record, ComputeForEmployee(record, params), params.Version,
		time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	payload, err := json.Marshal(snapshot)
	require.NoError(t, err)
	return snapshot, string(payload)
}

func TestSnapshotCache(t *testing.T) {
	ctx := context.Background()
	ttl := 45 * 24 * time.Hour

	t.Run("Hit", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		cache := NewSnapshotCache(rdb, ttl, zap.NewNop())
		snapshot, payload := cachedSnapshot(t)

		mock.ExpectGet(SnapshotKey("emp-1")).SetVal(payload)

		got, err := cache.Get(ctx, "emp-1")
		require.NoError(t, err)
		assert.Equal(t, snapshot.Checksum, got.Checksum)
		assert.Equal(t, int64(133118), got.Result.NetPay)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Miss", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		cache := NewSnapshotCache(rdb, ttl, zap.NewNop())

		mock.ExpectGet(SnapshotKey("emp-1")).RedisNil()

		_, err := cache.Get(ctx, "emp-1")
		assert.ErrorIs(t, err, ErrSnapshotNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UndecodablePayloadIsDropped", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		cache := NewSnapshotCache(rdb, ttl, zap.NewNop())

		mock.ExpectGet(SnapshotKey("emp-1")).SetVal("{not json")
		mock.ExpectDel(SnapshotKey("emp-1")).SetVal(1)

		_, err := cache.Get(ctx, "emp-1")
		assert.ErrorIs(t, err, ErrSnapshotNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RedisError", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		cache := NewSnapshotCache(rdb, ttl, zap.NewNop())

		mock.ExpectGet(SnapshotKey("emp-1")).SetErr(errors.New("connection refused"))

		_, err := cache.Get(ctx, "emp-1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrSnapshotNotFound)
	})

	t.Run("Put", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		cache := NewSnapshotCache(rdb, ttl, zap.NewNop())
		snapshot, payload := cachedSnapshot(t)

		mock.ExpectSet(SnapshotKey("emp-1"), payload, ttl).SetVal("OK")

		require.NoError(t, cache.Put(ctx, snapshot))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Disabled", func(t *testing.T) {
		cache := NewSnapshotCache(nil, ttl, zap.NewNop())
		_, err := cache.Get(ctx, "emp-1")
		assert.ErrorIs(t, err, ErrSnapshotNotFound)
		assert.NoError(t, cache.Put(ctx, PayslipSnapshot{EmployeeID: "emp-1"}))
		cache.Invalidate(ctx, "emp-1")
	})
}
