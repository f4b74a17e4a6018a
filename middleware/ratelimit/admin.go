package ratelimit

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"admission-gateway/middleware/gatekeeper"
	"admission-gateway/middleware/ratelimit/domain"
)

const defaultSnapshotTop = 10

// AdminHandler expõe as operações de relatório do limiter:
//
//	GET    /admin/ratelimit/clients/{id}
//	DELETE /admin/ratelimit/clients/{id}[?endpoint=]
//	GET    /admin/ratelimit/snapshot[?top=]
//
// Precisa rodar atrás de Middleware (a identidade vem do contexto) e só
// atende identidades admin.
type AdminHandler struct {
	reporter domain.Reporter
	logger   *slog.Logger
	mux      *http.ServeMux
}

func NewAdminHandler(reporter domain.Reporter, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &AdminHandler{reporter: reporter, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /admin/ratelimit/clients/{id}", h.usage)
	h.mux.HandleFunc("DELETE /admin/ratelimit/clients/{id}", h.reset)
	h.mux.HandleFunc("GET /admin/ratelimit/snapshot", h.snapshot)
	return h
}

func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := gatekeeper.IdentityFrom(r.Context())
	if !ok || !id.Authenticated() {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if id.Tier != domain.TierAdmin {
		writeError(w, http.StatusForbidden, "admin privileges required")
		return
	}
	h.mux.ServeHTTP(w, r)
}

func (h *AdminHandler) usage(w http.ResponseWriter, r *http.Request) {
	client := r.PathValue("id")
	u, err := h.reporter.Usage(r.Context(), client)
	if err != nil {
		h.fail(w, r, "usage", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client_id": client, "usage": u})
}

func (h *AdminHandler) reset(w http.ResponseWriter, r *http.Request) {
	client := r.PathValue("id")
	endpoint := r.URL.Query().Get("endpoint")
	n, err := h.reporter.Reset(r.Context(), client, endpoint)
	if err != nil {
		h.fail(w, r, "reset", err)
		return
	}
	h.logger.InfoContext(r.Context(), "rate limit reset",
		"client", client,
		"endpoint", endpoint,
		"keys", n,
	)
	writeJSON(w, http.StatusOK, map[string]any{"client_id": client, "endpoint": endpoint, "deleted_keys": n})
}

func (h *AdminHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	top := defaultSnapshotTop
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "top must be a positive integer")
			return
		}
		top = n
	}
	s, err := h.reporter.Snapshot(r.Context(), top)
	if err != nil {
		h.fail(w, r, "snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *AdminHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, domain.ErrLimiterUnavailable) {
		h.logger.WarnContext(r.Context(), "rate limit admin unavailable", "op", op, "err", err)
		writeError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
		return
	}
	h.logger.ErrorContext(r.Context(), "rate limit admin failed", "op", op, "err", err)
	writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
