package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/stock"
)

// clearEnv blanks every key Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	for _, key := range []string{
		"PORT", "DB_PATH", "APP_ENV", "ALLOWED_ORIGINS", "REDIS_ADDR", "REDIS_CHANNEL",
		"THRESHOLD_CRITICAL", "THRESHOLD_LOW", "THRESHOLD_LIMITED",
		"REQUIRE_INBOUND_NOTE", "MAX_COMMIT_ATTEMPTS", "AUDIT_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "stock.db", cfg.DBPath)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "stock.low", cfg.RedisChannel)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, stock.DefaultThresholds, cfg.Thresholds)
	assert.True(t, cfg.RequireInboundNote)
	assert.Equal(t, stock.DefaultMaxAttempts, cfg.MaxCommitAttempts)
	assert.NotEmpty(t, cfg.AllowedOrigins)
	assert.Equal(t, time.Hour, cfg.AuditInterval)
}

func TestLoad_EnvironmentThenFlags(t *testing.T) {
	// GIVEN: environment overrides
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("DB_PATH", "/tmp/env.db")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("THRESHOLD_CRITICAL", "1")
	t.Setenv("THRESHOLD_LOW", "3")
	t.Setenv("THRESHOLD_LIMITED", "20")
	t.Setenv("REQUIRE_INBOUND_NOTE", "false")
	t.Setenv("AUDIT_INTERVAL", "15m")

	// WHEN: flags override some of them
	cfg, err := Load([]string{"-port", "7000", "-env", "production"})
	require.NoError(t, err)

	// THEN
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "/tmp/env.db", cfg.DBPath)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, stock.Thresholds{Critical: 1, Low: 3, Limited: 20}, cfg.Thresholds)
	assert.False(t, cfg.RequireInboundNote)
	assert.Equal(t, 15*time.Minute, cfg.AuditInterval)

	opts := cfg.ServiceOptions(nil)
	assert.True(t, opts.AllowUnnotedInbound)
	assert.Equal(t, cfg.Thresholds, opts.Thresholds)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"non-increasing thresholds", map[string]string{"THRESHOLD_LOW": "2"}, nil},
		{"negative critical", map[string]string{"THRESHOLD_CRITICAL": "-1"}, nil},
		{"non-integer threshold", map[string]string{"THRESHOLD_LIMITED": "ten"}, nil},
		{"bad bool", map[string]string{"REQUIRE_INBOUND_NOTE": "maybe"}, nil},
		{"bad duration", map[string]string{"AUDIT_INTERVAL": "hourly"}, nil},
		{"zero attempts", map[string]string{"MAX_COMMIT_ATTEMPTS": "0"}, nil},
		{"bad port flag", nil, []string{"-port", "0"}},
		{"unknown flag", nil, []string{"-nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"development", EnvProduction} {
		logger, err := NewLogger(env)
		require.NoError(t, err, env)
		assert.NotNil(t, logger)
	}
}
