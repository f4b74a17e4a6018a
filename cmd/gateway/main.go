package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/gatekeeper"
	"admission-gateway/middleware/logging"
	"admission-gateway/middleware/ratelimit"
	rlapp "admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	rlinfra "admission-gateway/middleware/ratelimit/infra"
	"admission-gateway/middleware/session"
	"admission-gateway/middleware/session/application"
	sessiondomain "admission-gateway/middleware/session/domain"
	sessioninfra "admission-gateway/middleware/session/infra"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		return errors.New("invalid UPSTREAM_URL: " + err.Error())
	}
	policy, err := rlinfra.LoadPolicyFile(cfg.policyFile)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	})
	defer func() { _ = rdb.Close() }()

	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	err = rdb.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		// segue de pé: o limiter aplica FAILURE_POLICY e a sessão devolve 503
		logger.Warn("redis ping failed", "addr", cfg.redisAddr, "err", err)
	}

	// sessão
	tokens, err := sessioninfra.NewJWTIssuer([]byte(cfg.jwtSecret), sessioninfra.WithTokenTTL(cfg.jwtTTL))
	if err != nil {
		return err
	}
	hashGate := rlapp.ConcurrencyService{Pool: rlinfra.NewChanPool(cfg.hashConcurrency)}
	sessions := application.NewManager(application.Deps{
		Users:     sessioninfra.NewRedisUserStore(rdb, sessioninfra.WithUserTimeout(cfg.storeTimeout)),
		Blacklist: sessioninfra.NewRedisBlacklist(rdb, sessioninfra.WithBlacklistTimeout(cfg.storeTimeout)),
		Activity:  sessioninfra.NewRedisActivityStore(rdb, sessioninfra.WithActivityTimeout(cfg.storeTimeout)),
		Tokens:    tokens,
		Vault:     sessioninfra.NewBcryptVault(cfg.bcryptCost, hashGate),
	}, application.WithLogger(logger))

	if cfg.adminUsername != "" {
		admin, err := sessions.EnsureAdmin(ctx, sessiondomain.RegisterInput{
			Username: cfg.adminUsername,
			Email:    cfg.adminEmail,
			Password: cfg.adminPassword,
		})
		if err != nil {
			logger.Error("admin bootstrap failed", "username", cfg.adminUsername, "err", err)
		} else {
			logger.Info("admin ready", "user_id", admin.ID, "username", admin.Username)
		}
	}

	// rate limit
	windows := rlinfra.NewRedisWindowStore(rdb,
		rlinfra.WithKeyPrefix(cfg.ratePrefix),
		rlinfra.WithOpTimeout(cfg.storeTimeout),
	)
	windows.StartJanitor(ctx, cfg.sweepEvery, logger)

	fallback := rlapp.Fallback{Mode: cfg.failurePolicy, Policy: policy}
	if cfg.failurePolicy == domain.FailLocal {
		local := rlinfra.NewLocalStore()
		local.StartJanitor(ctx)
		fallback.Local = local
	}

	gkOpts := []gatekeeper.Option{
		gatekeeper.WithLogger(logger),
		gatekeeper.WithFallback(fallback),
		gatekeeper.WithRejectInvalidTokens(cfg.rejectInvalidTokens),
	}
	if cfg.rateStatsEnabled {
		gkOpts = append(gkOpts, gatekeeper.WithStats(rlinfra.NewRedisStatsStore(rdb,
			rlinfra.WithStatsPrefix(cfg.rateStatsPrefix),
			rlinfra.WithStatsRetention(cfg.rateStatsRetention),
			rlinfra.WithStatsSeries(cfg.rateStatsSeries),
			rlinfra.WithStatsPerClient(cfg.rateStatsPerClient),
			rlinfra.WithStatsTimeout(cfg.storeTimeout),
		)))
	}
	gk := gatekeeper.New(sessions, rlapp.Service{Policy: policy, Store: windows}, gkOpts...)

	// rotas
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.ErrorContext(r.Context(), "proxy error", "err", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	sessionHandler := session.NewHandler(sessions, logger)
	mux := http.NewServeMux()
	mux.Handle("/auth/", sessionHandler)
	mux.Handle("/admin/users/", sessionHandler)
	mux.Handle("/admin/ratelimit/", ratelimit.NewAdminHandler(windows, logger))
	mux.Handle("/", proxy)

	admitted := http.Handler(mux)
	if cfg.rateEnabled {
		admitted = ratelimit.Middleware(ratelimit.Options{
			Gatekeeper:          gk,
			TrustXForwardedFor:  cfg.trustXFF,
			AddRateLimitHeaders: cfg.addHeaders,
			Logger:              logger,
		})(admitted)
	}

	top := http.NewServeMux()
	top.HandleFunc("GET /health", healthHandler(rdb, logger))
	top.Handle("/", admitted)

	h := http.Handler(top)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
		Logger:         logger,
	})(h)
	h = logging.Recovery(logger)(h)
	h = logging.Middleware(logger, "/health")(h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		"addr", cfg.listenAddr,
		"upstream", target.String(),
		"redis", cfg.redisAddr,
		"failure_policy", cfg.failurePolicy,
		"rate_enabled", cfg.rateEnabled,
		"reject_invalid_tokens", cfg.rejectInvalidTokens,
		"concurrency_max", cfg.concurrencyMax,
		"hash_concurrency", cfg.hashConcurrency,
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// healthHandler reporta o estado do Redis. Redis fora não derruba o gateway,
// então a resposta é 503 com status "degraded".
func healthHandler(rdb *redis.Client, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		redisStatus := "healthy"
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.WarnContext(r.Context(), "health check: redis unavailable", "err", err)
			status, code = "degraded", http.StatusServiceUnavailable
			redisStatus = "unhealthy"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    status,
			"timestamp": time.Now().UTC(),
			"services":  map[string]string{"redis": redisStatus},
		})
	}
}
