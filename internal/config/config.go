package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port              string        `envconfig:"PORT" default:"8080"`
	DBURL             string        `envconfig:"DB_URL" required:"true"`
	JWTSecret         string        `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer         string        `envconfig:"JWT_ISSUER" default:"moviestore"`
	RedisURL          string        `envconfig:"REDIS_URL"`
	ReadTimeoutSecs   int           `envconfig:"SERVER_READ_TIMEOUT" default:"15"`
	WriteTimeoutSecs  int           `envconfig:"SERVER_WRITE_TIMEOUT" default:"15"`
	IdleTimeoutSecs   int           `envconfig:"SERVER_IDLE_TIMEOUT" default:"60"`
	DBMaxConns        int           `envconfig:"DB_MAX_CONNS" default:"20"`
	DBMinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	DBMaxIdleSecs     int           `envconfig:"DB_MAX_CONN_IDLE_SECS" default:"300"`
	DBMaxLifeSecs     int           `envconfig:"DB_MAX_CONN_LIFETIME_SECS" default:"3600"`
	DBConnTimeoutSecs int           `envconfig:"DB_CONN_TIMEOUT_SECS" default:"10"`
	DBStatementCache  int           `envconfig:"DB_STATEMENT_CACHE_CAPACITY" default:"256"`
	AutoMigrate       bool          `envconfig:"AUTO_MIGRATE" default:"false"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat         string        `envconfig:"LOG_FORMAT" default:"json"`
	LogWarnStack      bool          `envconfig:"LOG_WARN_STACK" default:"false"`
	CORSOrigins       []string      `envconfig:"CORS_ALLOWED_ORIGINS"`
	RateLimitWrites   int64         `envconfig:"RATE_LIMIT_WRITES" default:"30"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
	CartTTL           time.Duration `envconfig:"CART_TTL" default:"168h"`
}

// Load reads configuration from environment variables, applying defaults and validation.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if cfg.RateLimitWrites < 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_WRITES must be non-negative")
	}
	if cfg.RateLimitWrites > 0 && cfg.RateLimitWindow <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_WINDOW must be positive when RATE_LIMIT_WRITES is set")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return Config{}, fmt.Errorf("LOG_FORMAT must be json or console")
	}
	if cfg.CartTTL < 0 {
		return Config{}, fmt.Errorf("CART_TTL must be non-negative")
	}

	return cfg, nil
}

// RateLimitEnabled reports whether authenticated writes are throttled.
func (c Config) RateLimitEnabled() bool {
	return c.RateLimitWrites > 0 && c.RedisURL != ""
}
