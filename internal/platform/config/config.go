package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config aggregates all service configuration. FromEnv keeps main lean and
// makes every knob overridable per environment.
type Config struct {
	Server   Server
	Postgres PostgresConfig
	Redis    RedisConfig
	Export   ExportConfig
	LogLevel slog.Level
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// PostgresConfig configures the research-data store. Empty URL means the
// in-memory stores are used (dev and tests).
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig configures the participant identity mapping store. The mapping
// deliberately lives in a different backing store than the research data.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ExportConfig holds partner-facing export settings.
type ExportConfig struct {
	TokenSigningKey string
	TokenTTL        time.Duration
}

// FromEnv builds a Config from environment variables with development
// defaults.
func FromEnv() Config {
	cfg := Config{
		Server: Server{
			Addr:            getEnv("TESSERA_ADDR", ":8080"),
			ShutdownTimeout: getDuration("TESSERA_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: PostgresConfig{
			URL:          os.Getenv("TESSERA_POSTGRES_URL"),
			MaxOpenConns: getInt("TESSERA_POSTGRES_MAX_OPEN", 10),
			MaxIdleConns: getInt("TESSERA_POSTGRES_MAX_IDLE", 5),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("TESSERA_REDIS_URL"),
			PoolSize:     getInt("TESSERA_REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("TESSERA_REDIS_MIN_IDLE", 2),
			DialTimeout:  getDuration("TESSERA_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("TESSERA_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("TESSERA_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Export: ExportConfig{
			TokenSigningKey: getEnv("TESSERA_EXPORT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			TokenTTL:        getDuration("TESSERA_EXPORT_TOKEN_TTL", 15*time.Minute),
		},
		LogLevel: parseLevel(os.Getenv("TESSERA_LOG_LEVEL")),
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
