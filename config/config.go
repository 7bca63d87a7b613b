/*
Package config loads server configuration and builds the logger.

PRECEDENCE (lowest to highest):
  1. Built-in defaults
  2. .env file in the working directory (optional)
  3. Process environment
  4. Command-line flags (-port, -db, -env)

KEYS:
  PORT                  HTTP port (8080)
  DB_PATH               SQLite path, ":memory:" allowed (stock.db)
  APP_ENV               development | production (development)
  ALLOWED_ORIGINS       comma-separated CORS origins
  REDIS_ADDR            enables the Redis notification sink when set
  REDIS_CHANNEL         channel for low-stock events (stock.low)
  THRESHOLD_CRITICAL    2
  THRESHOLD_LOW         5
  THRESHOLD_LIMITED     10
  REQUIRE_INBOUND_NOTE  true
  MAX_COMMIT_ATTEMPTS   3
  AUDIT_INTERVAL        Go duration between scheduled audits, 0 disables (1h)
*/
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/stock-ledger/stock"
)

const EnvProduction = "production"

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// Config is the resolved server configuration.
type Config struct {
	Port           int
	DBPath         string
	Env            string
	AllowedOrigins []string

	RedisAddr    string
	RedisChannel string

	Thresholds         stock.Thresholds
	RequireInboundNote bool
	MaxCommitAttempts  int

	AuditInterval time.Duration
}

// ServiceOptions maps the config onto stock.Options.
func (c *Config) ServiceOptions(notifier stock.Notifier) stock.Options {
	return stock.Options{
		Thresholds:          c.Thresholds,
		Notifier:            notifier,
		AllowUnnotedInbound: !c.RequireInboundNote,
		MaxAttempts:         c.MaxCommitAttempts,
	}
}

// Load resolves configuration. args excludes the program name.
func Load(args []string) (*Config, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:         getEnv("DB_PATH", "stock.db"),
		Env:            getEnv("APP_ENV", "development"),
		AllowedOrigins: defaultOrigins,
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisChannel:   getEnv("REDIS_CHANNEL", "stock.low"),
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	var err error
	if cfg.Port, err = getEnvInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.Thresholds.Critical, err = getEnvInt("THRESHOLD_CRITICAL", stock.DefaultCriticalThreshold); err != nil {
		return nil, err
	}
	if cfg.Thresholds.Low, err = getEnvInt("THRESHOLD_LOW", stock.DefaultLowThreshold); err != nil {
		return nil, err
	}
	if cfg.Thresholds.Limited, err = getEnvInt("THRESHOLD_LIMITED", stock.DefaultLimitedThreshold); err != nil {
		return nil, err
	}
	if cfg.MaxCommitAttempts, err = getEnvInt("MAX_COMMIT_ATTEMPTS", stock.DefaultMaxAttempts); err != nil {
		return nil, err
	}
	if cfg.AuditInterval, err = getEnvDuration("AUDIT_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RequireInboundNote, err = getEnvBool("REQUIRE_INBOUND_NOTE", true); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.Env, "env", cfg.Env, "environment (development|production)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}
	if cfg.MaxCommitAttempts <= 0 {
		return nil, fmt.Errorf("MAX_COMMIT_ATTEMPTS must be positive, got %d", cfg.MaxCommitAttempts)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	return cfg, nil
}

// NewLogger builds a JSON production logger for env "production" and a
// colored console logger otherwise.
func NewLogger(env string) (*zap.Logger, error) {
	var zc zap.Config
	if env == EnvProduction {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zc.Build()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a boolean", key, v)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	if v == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s: %q is not a non-negative duration", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
