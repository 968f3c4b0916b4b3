package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCaptureTTL bounds how long a captured payment can be resumed.
const DefaultCaptureTTL = 72 * time.Hour

// RedisLedger shares outstanding captures between storefront instances.
// Entries live under checkout:capture:<cart key>.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = DefaultCaptureTTL
	}
	return &RedisLedger{client: client, ttl: ttl}
}

func (l *RedisLedger) Record(ctx context.Context, c Capture) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal capture failed: %w", err)
	}
	if err := l.client.Set(ctx, captureKey(c.CartKey), data, l.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (l *RedisLedger) Lookup(ctx context.Context, cartKey string) (*Capture, error) {
	data, err := l.client.Get(ctx, captureKey(cartKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCaptureNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var c Capture
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal capture failed: %w", err)
	}
	return &c, nil
}

func (l *RedisLedger) Forget(ctx context.Context, cartKey string) error {
	if err := l.client.Del(ctx, captureKey(cartKey)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func captureKey(cartKey string) string {
	return fmt.Sprintf("checkout:capture:%s", cartKey)
}
