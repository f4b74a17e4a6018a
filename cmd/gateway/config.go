package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

type config struct {
	listenAddr  string
	upstreamURL string

	redisAddr     string
	redisPassword string
	redisDB       int
	storeTimeout  time.Duration

	jwtSecret       string
	jwtTTL          time.Duration
	bcryptCost      int
	hashConcurrency int

	rateEnabled         bool
	ratePrefix          string
	policyFile          string
	failurePolicy       domain.FailurePolicy
	sweepEvery          time.Duration
	rejectInvalidTokens bool
	trustXFF            bool
	addHeaders          bool
	concurrencyMax      int
	concurrencyTimeout  time.Duration

	rateStatsEnabled   bool
	rateStatsPrefix    string
	rateStatsRetention time.Duration
	rateStatsSeries    time.Duration
	rateStatsPerClient bool

	adminUsername string
	adminEmail    string
	adminPassword string

	logLevel  slog.Level
	logFormat string
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")

	cfg.redisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)
	cfg.storeTimeout = getenvDurationDefault("STORE_TIMEOUT", 250*time.Millisecond)

	cfg.jwtSecret = os.Getenv("JWT_SECRET")
	cfg.jwtTTL = getenvDurationDefault("JWT_TTL", 24*time.Hour)
	cfg.bcryptCost = getenvIntDefault("BCRYPT_COST", 12)
	cfg.hashConcurrency = getenvIntDefault("HASH_CONCURRENCY", runtime.GOMAXPROCS(0))

	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.ratePrefix = getenvDefault("RATE_PREFIX", "rate_limit")
	cfg.policyFile = os.Getenv("POLICY_FILE")
	cfg.sweepEvery = getenvDurationDefault("SWEEP_EVERY", 5*time.Minute)
	cfg.rejectInvalidTokens = getenvBoolDefault("REJECT_INVALID_TOKENS", false)
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", true)
	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.rateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.rateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", "ratelimit:stats")
	cfg.rateStatsRetention = getenvDurationDefault("RATE_STATS_RETENTION", 24*time.Hour)
	cfg.rateStatsSeries = getenvDurationDefault("RATE_STATS_SERIES", time.Minute)
	cfg.rateStatsPerClient = getenvBoolDefault("RATE_STATS_PER_CLIENT", false)

	cfg.adminUsername = os.Getenv("ADMIN_USERNAME")
	cfg.adminEmail = os.Getenv("ADMIN_EMAIL")
	cfg.adminPassword = os.Getenv("ADMIN_PASSWORD")

	cfg.logFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "json"))

	fp, err := domain.ParseFailurePolicy(os.Getenv("FAILURE_POLICY"))
	if err != nil {
		return config{}, fmt.Errorf("FAILURE_POLICY: %w", err)
	}
	cfg.failurePolicy = fp

	if err := cfg.logLevel.UnmarshalText([]byte(getenvDefault("LOG_LEVEL", "info"))); err != nil {
		return config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	if cfg.jwtSecret == "" {
		return config{}, errors.New("JWT_SECRET is required")
	}
	if strings.TrimSpace(cfg.redisAddr) == "" {
		return config{}, errors.New("REDIS_ADDR is required")
	}
	if cfg.storeTimeout <= 0 {
		return config{}, errors.New("STORE_TIMEOUT must be > 0")
	}
	if cfg.jwtTTL <= 0 {
		return config{}, errors.New("JWT_TTL must be > 0")
	}
	if cfg.hashConcurrency <= 0 {
		return config{}, errors.New("HASH_CONCURRENCY must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if cfg.logFormat != "json" && cfg.logFormat != "text" {
		return config{}, fmt.Errorf("LOG_FORMAT must be json or text, got %q", cfg.logFormat)
	}
	if cfg.adminUsername != "" && (cfg.adminEmail == "" || cfg.adminPassword == "") {
		return config{}, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD are required when ADMIN_USERNAME is set")
	}
	return cfg, nil
}

func newLogger(cfg config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.logLevel}
	if cfg.logFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
