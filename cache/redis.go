package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KeyReceipt   = "case:receipt:%s"
	KeyRateLimit = "ratelimit:%s:%s"

	TTLReceipt = 24 * time.Hour
)

// Redis holds the purchase receipt replay cache and the per-account rate
// limiter.
type Redis struct {
	client     *redis.Client
	receiptTTL time.Duration
}

func NewRedis(ctx context.Context, addr, password string, db int, receiptTTL time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	if receiptTTL <= 0 {
		receiptTTL = TTLReceipt
	}
	return &Redis{client: client, receiptTTL: receiptTTL}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Load returns a cached receipt for an idempotency key.
func (r *Redis) Load(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, fmt.Sprintf(KeyReceipt, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Store caches a completed receipt. Receipts never change once written.
func (r *Redis) Store(ctx context.Context, key string, receipt []byte) error {
	return r.client.Set(ctx, fmt.Sprintf(KeyReceipt, key), receipt, r.receiptTTL).Err()
}

// Allow counts one action for the subject in a fixed window and reports
// whether it is still within limit. A counter found without an expiry gets
// one, so a failed Expire cannot pin the subject at its limit.
func (r *Redis) Allow(ctx context.Context, subject, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, subject, action)
	pipe := r.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if ttl.Val() < 0 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}
	return incr.Val() <= int64(limit), nil
}
