// Package logging tem os middlewares de borda: log de acesso e recover.
package logging

import (
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"time"
)

// responseWriter captura status e bytes escritos.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// sensitiveParams nunca vão para o log.
var sensitiveParams = []string{"token", "access_token", "password"}

// Middleware loga cada pedido com nível pelo status: 5xx error, 4xx warn,
// resto info. Paths em skip (ex.: /health) não são logados.
//
// Não loga headers nem corpo; o Authorization carrega o bearer token.
func Middleware(logger *slog.Logger, skip ...string) func(http.Handler) http.Handler {
	skipMap := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipMap[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipMap[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			level := slog.LevelInfo
			switch {
			case wrapped.statusCode >= 500:
				level = slog.LevelError
			case wrapped.statusCode >= 400:
				level = slog.LevelWarn
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes_written", wrapped.written,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			}
			if q := sanitizeQuery(r.URL.Query()); q != "" {
				attrs = append(attrs, "query", q)
			}
			// headers do rate limiter, quando presentes
			h := wrapped.Header()
			if key := h.Get("X-RateLimit-Key"); key != "" {
				attrs = append(attrs, "client", key)
			}
			if h.Get("X-RateLimit-Degraded") == "true" {
				attrs = append(attrs, "degraded", true)
			}

			logger.Log(r.Context(), level, "HTTP request", attrs...)
		})
	}
}

func sanitizeQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	for _, p := range sensitiveParams {
		if q.Has(p) {
			q.Set(p, "***")
		}
	}
	return q.Encode()
}

// Recovery transforma panic em 500 com corpo JSON genérico.
// http.ErrAbortHandler é repassado para o servidor abortar a resposta.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.ErrorContext(r.Context(), "panic recovered",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal server error"}` + "\n"))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
