package risk

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Window counts violations inside a sliding time span.
type Window interface {
	// Add records eventID at time at and returns how many violations of the
	// account fall within the span ending at at. Adding the same eventID twice
	// counts it once.
	Add(ctx context.Context, accountID, eventID string, at time.Time) (int64, error)
}

const keyViolations = "risk:violations:%s"

// RedisWindow keeps one sorted set per account, scored by unix millis.
type RedisWindow struct {
	client *redis.Client
	span   time.Duration
}

func NewRedisWindow(client *redis.Client, span time.Duration) *RedisWindow {
	return &RedisWindow{client: client, span: span}
}

func (w *RedisWindow) Add(ctx context.Context, accountID, eventID string, at time.Time) (int64, error) {
	key := fmt.Sprintf(keyViolations, accountID)
	floor := at.Add(-w.span).UnixMilli()

	var count *redis.IntCmd
	_, err := w.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: eventID})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(floor, 10))
		count = pipe.ZCount(ctx, key, strconv.FormatInt(floor, 10), "+inf")
		pipe.Expire(ctx, key, w.span)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record violation in redis: %w", err)
	}
	return count.Val(), nil
}

// DBWindow counts persisted security events. Used when Redis is not configured.
type DBWindow struct {
	db   *gorm.DB
	span time.Duration
}

func NewDBWindow(db *gorm.DB, span time.Duration) *DBWindow {
	return &DBWindow{db: db, span: span}
}

func (w *DBWindow) Add(ctx context.Context, accountID, _ string, at time.Time) (int64, error) {
	var count int64
	err := w.db.WithContext(ctx).Model(&SecurityEvent{}).
		Where("account_id = ? AND type = ? AND created_at >= ? AND created_at <= ?",
			accountID, EventBetLimitViolation, at.Add(-w.span), at).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count violations: %w", err)
	}
	return count, nil
}
