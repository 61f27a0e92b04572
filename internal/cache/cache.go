package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// New opens the configured cache: an LRU for memory, Redis, or Redis behind
// a local LRU when two-phase caching is enabled.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case domain.CacheMemory:
		return NewLRUCache(cfg.LocalMaxSize), nil
	case domain.CacheRedis:
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg)
	}
	return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
}

// TwoPhaseCache reads through a local LRU before Redis. Writes go to both;
// counters live only in Redis so every replica sees one window.
type TwoPhaseCache struct {
	local    *LRUCache
	remote   domain.Cache
	localTTL time.Duration
}

// NewTwoPhaseCache connects to Redis and puts a local LRU in front of it.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg)
	if err != nil {
		return nil, err
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote domain.Cache, localTTL time.Duration) *TwoPhaseCache {
	if localTTL <= 0 {
		localTTL = 5 * time.Minute
	}
	return &TwoPhaseCache{local: local, remote: remote, localTTL: localTTL}
}

// Get returns the local value, or the remote one which is then kept locally.
func (c *TwoPhaseCache) Get(ctx context.Context, accountID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, accountID, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, accountID, key)
	if err != nil || val == nil {
		return nil, err
	}
	_ = c.local.Set(ctx, accountID, key, val, c.localTTL)
	return val, nil
}

// Set writes the local copy with at most the local TTL and the remote copy
// with the full TTL.
func (c *TwoPhaseCache) Set(ctx context.Context, accountID string, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, accountID, key, value, min(ttl, c.localTTL)); err != nil {
		return err
	}
	return c.remote.Set(ctx, accountID, key, value, ttl)
}

// Delete removes both copies.
func (c *TwoPhaseCache) Delete(ctx context.Context, accountID string, key string) error {
	if err := c.local.Delete(ctx, accountID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, accountID, key)
}

// IncrementCounter always counts in Redis.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, accountID string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, accountID, key, window)
}

// Ping checks both layers.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("local cache: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("redis cache: %w", err)
	}
	return nil
}

// Close closes both layers.
func (c *TwoPhaseCache) Close() error {
	return errors.Join(c.local.Close(), c.remote.Close())
}
