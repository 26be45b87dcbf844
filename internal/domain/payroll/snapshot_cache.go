package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const snapshotKeyPrefix = "payslip:last:"

func SnapshotKey(employeeID string) string {
	return snapshotKeyPrefix + employeeID
}

// SnapshotCache keeps the last payslip of each employee in Redis in front of
// the sealed copy in Postgres. A nil client disables it.
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewSnapshotCache(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *SnapshotCache {
	if log == nil {
		log = zap.L().Named("payroll.snapshot_cache")
	}
	return &SnapshotCache{rdb: rdb, ttl: ttl, log: log}
}

// Get returns ErrSnapshotNotFound on a miss or when the cache is disabled.
// A payload that does not decode is dropped and reported as a miss.
func (c *SnapshotCache) Get(ctx context.Context, employeeID string) (PayslipSnapshot, error) {
	if c == nil || c.rdb == nil {
		return PayslipSnapshot{}, ErrSnapshotNotFound
	}
	key := SnapshotKey(employeeID)
	cached, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return PayslipSnapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return PayslipSnapshot{}, err
	}
	var snapshot PayslipSnapshot
	if err := json.Unmarshal([]byte(cached), &snapshot); err != nil {
		c.log.Warn("dropping undecodable snapshot", zap.String("key", key), zap.Error(err))
		c.Invalidate(ctx, employeeID)
		return PayslipSnapshot{}, ErrSnapshotNotFound
	}
	return snapshot, nil
}

func (c *SnapshotCache) Put(ctx context.Context, snapshot PayslipSnapshot) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, SnapshotKey(snapshot.EmployeeID), string(payload), c.ttl).Err()
}

func (c *SnapshotCache) Invalidate(ctx context.Context, employeeID string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, SnapshotKey(employeeID)).Err(); err != nil {
		c.log.Warn("snapshot invalidation failed", zap.String("employee_id", employeeID), zap.Error(err))
	}
}
