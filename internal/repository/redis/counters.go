package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bazarhub/auth-service/internal/core/port"
)

// CounterRepository stores renewing-window counters and TTL flags in Redis.
// Counters are written with SET plus expiry, so every write renews the
// window; the key simply disappearing ends it.
type CounterRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewCounterRepository constructs a repository using the provided client and key prefix.
func NewCounterRepository(client *redis.Client, keyPrefix string) *CounterRepository {
	return &CounterRepository{client: client, keyPrefix: keyPrefix}
}

// GetCount returns the stored counter, or zero when the key is absent.
func (r *CounterRepository) GetCount(ctx context.Context, key string) (int, error) {
	if key == "" {
		return 0, errors.New("key is required")
	}

	value, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get: %w", err)
	}

	count, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse counter: %w", err)
	}

	return count, nil
}

// SetCount stores the counter and resets its expiry.
func (r *CounterRepository) SetCount(ctx context.Context, key string, value int, ttl time.Duration) error {
	if key == "" {
		return errors.New("key is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	if err := r.client.Set(ctx, r.key(key), strconv.Itoa(value), ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes the counter or flag.
func (r *CounterRepository) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("key is required")
	}

	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// SetFlag marks the key present for the given duration.
func (r *CounterRepository) SetFlag(ctx context.Context, key string, ttl time.Duration) error {
	if key == "" {
		return errors.New("key is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	if err := r.client.Set(ctx, r.key(key), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set flag: %w", err)
	}

	return nil
}

// HasFlag reports whether the key is still present.
func (r *CounterRepository) HasFlag(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key is required")
	}

	exists, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}

	return exists > 0, nil
}

func (r *CounterRepository) key(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", r.keyPrefix, key)
}

var _ port.CounterCache = (*CounterRepository)(nil)
