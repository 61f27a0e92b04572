// Package throttle bounds how many submissions an account may make per window.
package throttle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// ErrLimited is returned when an account has used up its window.
var ErrLimited = errors.New("submission rate limit exceeded")

const counterKey = "throttle:submissions"

// Limiter counts submissions per account in fixed windows backed by the
// cache's atomic counters.
type Limiter struct {
	counter domain.Counter
	limit   int64
	window  time.Duration
}

// NewLimiter creates a limiter. It returns nil when limiting is disabled;
// a nil limiter allows everything.
func NewLimiter(counter domain.Counter, cfg domain.RateLimitConfig) *Limiter {
	if !cfg.Enabled || cfg.Limit <= 0 {
		return nil
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{counter: counter, limit: cfg.Limit, window: window}
}

// Allow records one submission for the account and reports how many remain
// in the current window. A cache failure lets the submission through.
func (l *Limiter) Allow(ctx context.Context, accountID string) (int64, error) {
	if l == nil {
		return -1, nil
	}
	if accountID == "" {
		return 0, domain.ErrNoAccount
	}

	count, err := l.counter.IncrementCounter(ctx, accountID, counterKey, l.window)
	if err != nil {
		slog.Warn("rate limit counter unavailable", "account_id", accountID, "error", err)
		return l.limit, nil
	}

	if count > l.limit {
		metrics.RateLimitedTotal.Inc()
		return 0, ErrLimited
	}
	return l.limit - count, nil
}

// Limit returns the per-window allowance.
func (l *Limiter) Limit() int64 {
	if l == nil {
		return 0
	}
	return l.limit
}

// Window returns the window length.
func (l *Limiter) Window() time.Duration {
	if l == nil {
		return 0
	}
	return l.window
}
