package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"admission-gateway/middleware/gatekeeper"
	"admission-gateway/middleware/ratelimit/domain"
	sessiondomain "admission-gateway/middleware/session/domain"
)

type KeyFunc func(r *http.Request) string

// EndpointFunc mapeia o pedido para o identificador de rota usado nas quotas.
type EndpointFunc func(r *http.Request) string

// Evaluator é o pipeline de admissão (gatekeeper.Gatekeeper).
type Evaluator interface {
	Evaluate(ctx context.Context, req gatekeeper.Request) gatekeeper.Verdict
}

type Options struct {
	Gatekeeper          Evaluator
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	EndpointFn          EndpointFunc
	AddRateLimitHeaders bool
	Logger              *slog.Logger
	Now                 func() time.Time
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// DefaultEndpoint normaliza o path: limpo, sem barra final, "/" para vazio.
func DefaultEndpoint(r *http.Request) string {
	p := path.Clean("/" + r.URL.Path)
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// Middleware faz a admissão por pedido: resolve identidade, consulta as janelas
// e só chama next quando o pedido é aceito. A identidade vai no contexto
// (gatekeeper.IdentityFrom).
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.EndpointFn == nil {
		opts.EndpointFn = DefaultEndpoint
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		if opts.Gatekeeper == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			v := opts.Gatekeeper.Evaluate(ctx, gatekeeper.Request{
				Bearer:     gatekeeper.BearerToken(r.Header.Get("Authorization")),
				ClientAddr: opts.KeyFn(r),
				Endpoint:   opts.EndpointFn(r),
			})

			if v.Err != nil {
				renderIdentityError(ctx, w, opts.Logger, v.Err)
				return
			}

			dec := v.Decision
			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", v.Identity.ClientID)
				w.Header().Set("X-RateLimit-Tier", string(v.Identity.Tier))
			}
			if dec.Limit > 0 && (opts.AddRateLimitHeaders || !dec.Allowed) {
				setQuotaHeaders(w, dec)
			}
			if dec.Degraded {
				w.Header().Set("X-RateLimit-Degraded", "true")
			}

			if !dec.Allowed {
				if dec.Degraded && dec.Limit == 0 {
					writeError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
					return
				}
				retry := retryAfterSeconds(dec, opts.Now())
				w.Header().Set("Retry-After", formatInt(retry))
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":       "rate limit exceeded",
					"window":      dec.Window.Name,
					"limit":       dec.Limit,
					"retry_after": retry,
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(gatekeeper.WithIdentity(ctx, v.Identity)))
		})
	}
}

func setQuotaHeaders(w http.ResponseWriter, dec domain.Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
	h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
	if !dec.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", formatInt64(dec.ResetAt.Unix()))
	}
	if dec.Window.Name != "" {
		h.Set("X-RateLimit-Window", dec.Window.Name)
	}
}

// retryAfterSeconds arredonda para cima, mínimo 1s.
func retryAfterSeconds(dec domain.Decision, now time.Time) int {
	secs := int(math.Ceil(dec.RetryAfter(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func renderIdentityError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	switch sessiondomain.Classify(err) {
	case sessiondomain.ClassAuthentication:
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeError(w, http.StatusUnauthorized, err.Error())
	case sessiondomain.ClassInfrastructure:
		logger.ErrorContext(ctx, "identity resolution unavailable", "err", err)
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		logger.ErrorContext(ctx, "admission failed", "err", err)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
