// Package config builds the runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Prefix is prepended to every environment variable name.
const Prefix = "KESTREL_"

// Load reads a .env file if present, picks the tier defaults from
// KESTREL_TIER and overlays the remaining KESTREL_* variables.
func Load() (*domain.Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a configuration from the current environment only.
func FromEnv() (*domain.Config, error) {
	var e env

	cfg := domain.DefaultConfig()
	switch tier := domain.Tier(e.str("TIER", string(domain.TierCommunity))); tier {
	case domain.TierCommunity:
	case domain.TierPro:
		cfg = domain.ProConfig()
	default:
		return nil, fmt.Errorf("%sTIER: unknown tier %q", Prefix, tier)
	}

	cfg.Server.Host = e.str("HOST", cfg.Server.Host)
	cfg.Server.Port = e.int("PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = e.duration("READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = e.duration("WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = e.duration("IDLE_TIMEOUT", cfg.Server.IdleTimeout)

	repo := &cfg.Repository
	repo.Driver = e.str("DB_DRIVER", repo.Driver)
	repo.SQLitePath = e.str("SQLITE_PATH", repo.SQLitePath)
	repo.PostgresURL = e.str("DATABASE_URL", repo.PostgresURL)
	repo.PostgresHost = e.str("PG_HOST", repo.PostgresHost)
	repo.PostgresPort = e.int("PG_PORT", repo.PostgresPort)
	repo.PostgresUser = e.str("PG_USER", repo.PostgresUser)
	repo.PostgresPassword = e.str("PG_PASSWORD", repo.PostgresPassword)
	repo.PostgresDB = e.str("PG_DB", repo.PostgresDB)
	repo.PostgresSSLMode = e.str("PG_SSLMODE", repo.PostgresSSLMode)
	repo.MaxOpenConns = e.int("DB_MAX_OPEN_CONNS", repo.MaxOpenConns)
	repo.MaxIdleConns = e.int("DB_MAX_IDLE_CONNS", repo.MaxIdleConns)
	repo.ConnMaxLifetime = e.duration("DB_CONN_MAX_LIFETIME", repo.ConnMaxLifetime)

	cfg.Cache.Type = e.str("CACHE", cfg.Cache.Type)
	cfg.Cache.RedisAddr = e.str("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = e.str("REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = e.int("REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.EnableTwoPhase = e.bool("CACHE_TWO_PHASE", cfg.Cache.EnableTwoPhase)
	cfg.Cache.LocalMaxSize = e.int("CACHE_SIZE", cfg.Cache.LocalMaxSize)

	cfg.EventBus.Type = e.str("BUS", cfg.EventBus.Type)
	cfg.EventBus.NATSUrl = e.str("NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = e.str("NATS_TOKEN", cfg.EventBus.NATSToken)
	cfg.EventBus.NATSQueueGroup = e.str("NATS_QUEUE", cfg.EventBus.NATSQueueGroup)
	cfg.EventBus.ChannelBufferSize = e.int("BUS_BUFFER", cfg.EventBus.ChannelBufferSize)

	cfg.Scoring.NoiseSeed = e.uint64("NOISE_SEED", cfg.Scoring.NoiseSeed)
	cfg.Alerts.Dedup = e.bool("ALERT_DEDUP", cfg.Alerts.Dedup)

	cfg.RateLimit.Enabled = e.bool("RATE_LIMIT", cfg.RateLimit.Enabled)
	cfg.RateLimit.Limit = int64(e.int("RATE_LIMIT_MAX", int(cfg.RateLimit.Limit)))
	cfg.RateLimit.Window = e.duration("RATE_LIMIT_WINDOW", cfg.RateLimit.Window)

	cfg.Workers.AsyncIntake = e.bool("ASYNC_INTAKE", cfg.Workers.AsyncIntake)
	cfg.Workers.OutboxInterval = e.duration("OUTBOX_INTERVAL", cfg.Workers.OutboxInterval)
	cfg.Workers.OutboxBatch = e.int("OUTBOX_BATCH", cfg.Workers.OutboxBatch)

	cfg.Logging.Level = strings.ToLower(e.str("LOG_LEVEL", cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(e.str("LOG_FORMAT", cfg.Logging.Format))
	cfg.Tracing.Enabled = e.bool("TRACING", cfg.Tracing.Enabled)
	cfg.Tracing.ServiceName = e.str("SERVICE_NAME", cfg.Tracing.ServiceName)

	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enum fields and ranges.
func Validate(cfg *domain.Config) error {
	var errs []error
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", cfg.Server.Port))
	}
	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported db driver %q", cfg.Repository.Driver))
	}
	switch cfg.Cache.Type {
	case domain.CacheMemory, domain.CacheRedis:
	default:
		errs = append(errs, fmt.Errorf("unsupported cache %q", cfg.Cache.Type))
	}
	switch cfg.EventBus.Type {
	case domain.BusChannel, domain.BusNATS:
	default:
		errs = append(errs, fmt.Errorf("unsupported event bus %q", cfg.EventBus.Type))
	}
	if _, ok := levels[cfg.Logging.Level]; !ok {
		errs = append(errs, fmt.Errorf("unknown log level %q", cfg.Logging.Level))
	}
	if cfg.RateLimit.Enabled && (cfg.RateLimit.Limit <= 0 || cfg.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate limit needs a positive max and window"))
	}
	return errors.Join(errs...)
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// NewLogger builds the process logger from the logging settings.
func NewLogger(cfg domain.LoggingConfig) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

// BootLogger is the logger used until the configuration has loaded, so
// startup failures share the default output format.
func BootLogger() *slog.Logger {
	return NewLogger(domain.DefaultConfig().Logging)
}

func newLogger(w io.Writer, cfg domain.LoggingConfig) *slog.Logger {
	level, ok := levels[cfg.Level]
	if !ok {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// env reads prefixed variables and collects parse errors.
type env struct {
	errs []error
}

func (e *env) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(Prefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *env) fail(key, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s%s=%q: %w", Prefix, key, v, err))
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *env) uint64(key string, def uint64) uint64 {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}
