package domain

import "time"

// Config is the full runtime configuration. DefaultConfig and ProConfig
// give the two tier baselines; the config package overlays the environment.
type Config struct {
	Tier   Tier         `json:"tier"`
	Server ServerConfig `json:"server"`

	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	Scoring   ScoringConfig   `json:"scoring"`
	Alerts    AlertsConfig    `json:"alerts"`
	RateLimit RateLimitConfig `json:"rateLimit"`
	Workers   WorkersConfig   `json:"workers"`

	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"readTimeout"`
	WriteTimeout time.Duration `json:"writeTimeout"`
	IdleTimeout  time.Duration `json:"idleTimeout"`
}

// ScoringConfig controls the transaction noise generator.
type ScoringConfig struct {
	// NoiseSeed seeds the perturbation generator. Zero means time-based.
	NoiseSeed uint64 `json:"noiseSeed"`
}

// AlertsConfig controls alert raising.
type AlertsConfig struct {
	// Dedup rejects a raise when an unresolved alert with the same
	// entity and alert type already exists.
	Dedup bool `json:"dedup"`
}

// RateLimitConfig bounds submissions per account.
type RateLimitConfig struct {
	Enabled bool          `json:"enabled"`
	Limit   int64         `json:"limit"`
	Window  time.Duration `json:"window"`
}

// WorkersConfig controls background workers.
type WorkersConfig struct {
	// AsyncIntake consumes submissions from the event bus in addition to HTTP.
	AsyncIntake bool `json:"asyncIntake"`

	// OutboxInterval is how often the relay polls for undelivered events.
	OutboxInterval time.Duration `json:"outboxInterval"`
	OutboxBatch    int           `json:"outboxBatch"`
}

// LoggingConfig selects the slog handler. Level is one of debug, info,
// warn or error; Format is json or text.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// TracingConfig turns on request spans through the global OpenTelemetry
// tracer provider.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, an in-process cache and channels.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, Redis and NATS.
	TierPro Tier = "pro"
)

// DefaultConfig returns a single-node Community configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  2 * time.Minute,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         CacheMemory,
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              BusChannel,
			ChannelBufferSize: 1000,
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
			Limit:   600,
			Window:  time.Minute,
		},
		Workers: WorkersConfig{
			OutboxInterval: time.Second,
			OutboxBatch:    100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for the Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresDB:      "kestrel",
		PostgresSSLMode: "disable",
	}
	cfg.Cache = CacheConfig{
		Type:           CacheRedis,
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              BusNATS,
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5 * time.Second,
		NATSQueueGroup:    "kestrel-intake",
	}
	cfg.RateLimit.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
