package port

import (
	"context"
	"time"
)

// CounterCache exposes the fixed-window counters and TTL flags backing rate
// limiting, brute-force tracking, and IP blocks. A missing key reads as zero
// or false rather than an error.
type CounterCache interface {
	GetCount(ctx context.Context, key string) (int, error)
	// SetCount stores the counter and resets its expiry to ttl, so each write
	// renews the window.
	SetCount(ctx context.Context, key string, value int, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	SetFlag(ctx context.Context, key string, ttl time.Duration) error
	HasFlag(ctx context.Context, key string) (bool, error)
}
