package main

import (
	"log/slog"
	"runtime"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("UPSTREAM_URL", "http://localhost:9000")
	t.Setenv("JWT_SECRET", "secret")
}

func TestReadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := readConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.listenAddr)
	assert.Equal(t, "localhost:6379", cfg.redisAddr)
	assert.Equal(t, 250*time.Millisecond, cfg.storeTimeout)
	assert.Equal(t, 24*time.Hour, cfg.jwtTTL)
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.hashConcurrency)
	assert.Equal(t, domain.FailOpen, cfg.failurePolicy)
	assert.Equal(t, "rate_limit", cfg.ratePrefix)
	assert.Equal(t, 5*time.Minute, cfg.sweepEvery)
	assert.False(t, cfg.rejectInvalidTokens)
	assert.Equal(t, slog.LevelInfo, cfg.logLevel)
	assert.Equal(t, "json", cfg.logFormat)
	assert.False(t, cfg.rateStatsEnabled)
	assert.Equal(t, time.Minute, cfg.rateStatsSeries)
	assert.Equal(t, 24*time.Hour, cfg.rateStatsRetention)
}

func TestReadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("FAILURE_POLICY", "Local")
	t.Setenv("STORE_TIMEOUT", "100ms")
	t.Setenv("HASH_CONCURRENCY", "2")
	t.Setenv("REJECT_INVALID_TOKENS", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "TEXT")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("RATE_STATS_SERIES", "0")
	t.Setenv("RATE_STATS_PER_CLIENT", "true")

	cfg, err := readConfig()
	require.NoError(t, err)
	assert.Equal(t, domain.FailLocal, cfg.failurePolicy)
	assert.Equal(t, 100*time.Millisecond, cfg.storeTimeout)
	assert.Equal(t, 2, cfg.hashConcurrency)
	assert.True(t, cfg.rejectInvalidTokens)
	assert.Equal(t, slog.LevelDebug, cfg.logLevel)
	assert.Equal(t, "text", cfg.logFormat)
	assert.Equal(t, 0, cfg.redisDB, "invalid numbers fall back to the default")
	assert.Zero(t, cfg.rateStatsSeries, "zero turns the series off")
	assert.True(t, cfg.rateStatsPerClient)
}

func TestReadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing upstream", map[string]string{"UPSTREAM_URL": ""}},
		{"missing jwt secret", map[string]string{"JWT_SECRET": ""}},
		{"unknown failure policy", map[string]string{"FAILURE_POLICY": "maybe"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"zero hash concurrency", map[string]string{"HASH_CONCURRENCY": "0"}},
		{"negative concurrency", map[string]string{"CONCURRENCY_MAX": "-1"}},
		{"admin without password", map[string]string{"ADMIN_USERNAME": "root", "ADMIN_EMAIL": "root@example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := readConfig()
			assert.Error(t, err)
		})
	}
}
