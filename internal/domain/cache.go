package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNoAccount is returned by cache calls made without an account id.
var ErrNoAccount = errors.New("account id is required")

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Counter counts events per account in fixed windows. A window starts at
// its first increment.
type Counter interface {
	IncrementCounter(ctx context.Context, accountID string, key string, window time.Duration) (int64, error)
}

// Cache holds short-lived per-account values: replayable idempotent
// responses and rate-limit windows. A miss is nil, nil.
type Cache interface {
	Counter

	Get(ctx context.Context, accountID string, key string) ([]byte, error)
	Set(ctx context.Context, accountID string, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, accountID string, key string) error

	Ping(ctx context.Context) error
	Close() error
}

// CacheKey namespaces a key by account.
func CacheKey(accountID, key string) string {
	return "kestrel:" + accountID + ":" + key
}

// CacheConfig selects and sizes the cache backend.
type CacheConfig struct {
	Type string `json:"type"`

	// LocalMaxSize bounds the in-process cache, values and counters together.
	LocalMaxSize int           `json:"localMaxSize"`
	LocalTTL     time.Duration `json:"localTtl"`

	RedisAddr     string `json:"redisAddr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redisDb"`

	// EnableTwoPhase reads through the local cache before Redis.
	EnableTwoPhase bool `json:"twoPhase"`
}
