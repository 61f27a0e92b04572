package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// counterPrefix separates rate-limit windows from cached values.
const counterPrefix = "counter:"

// incrWithExpiry increments a key and starts its expiry window on first use.
var incrWithExpiry = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// RedisCache is the pro-tier cache shared by every replica. Counters are
// atomic across replicas.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and pings it.
func NewRedisCache(cfg domain.CacheConfig) (*RedisCache, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisCache{client: client}, nil
}

// Get returns the value for key, or nil on a miss.
func (c *RedisCache) Get(ctx context.Context, accountID string, key string) ([]byte, error) {
	if accountID == "" {
		return nil, domain.ErrNoAccount
	}

	val, err := c.client.Get(ctx, domain.CacheKey(accountID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveLookup("redis", false)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	metrics.ObserveLookup("redis", true)
	return val, nil
}

// Set stores value with ttl.
func (c *RedisCache) Set(ctx context.Context, accountID string, key string, value []byte, ttl time.Duration) error {
	if accountID == "" {
		return domain.ErrNoAccount
	}
	return c.client.Set(ctx, domain.CacheKey(accountID, key), value, ttl).Err()
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, accountID string, key string) error {
	if accountID == "" {
		return domain.ErrNoAccount
	}
	return c.client.Del(ctx, domain.CacheKey(accountID, key)).Err()
}

// IncrementCounter runs INCR and starts the window's PEXPIRE in one script.
func (c *RedisCache) IncrementCounter(ctx context.Context, accountID string, key string, window time.Duration) (int64, error) {
	if accountID == "" {
		return 0, domain.ErrNoAccount
	}
	keys := []string{domain.CacheKey(accountID, counterPrefix+key)}
	return incrWithExpiry.Run(ctx, c.client, keys, window.Milliseconds()).Int64()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
