// Package session expõe o gerenciador de sessões via HTTP: cadastro, login,
// logout, refresh, perfil e administração de contas.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"admission-gateway/middleware/gatekeeper"
	"admission-gateway/middleware/session/domain"
)

const maxBodyBytes = 1 << 20

const (
	opSetActive = "set active"
	opPromote   = "promote"
)

// Service é o subconjunto do application.Manager usado pelos handlers.
type Service interface {
	Register(ctx context.Context, in domain.RegisterInput) (domain.User, error)
	Login(ctx context.Context, username, password string) (domain.User, domain.Token, error)
	Issue(u domain.User) (domain.Token, error)
	Verify(ctx context.Context, token string) (domain.User, error)
	Logout(ctx context.Context, token string) error
	Refresh(ctx context.Context, token string) (domain.Token, error)
	Activity(ctx context.Context, userID string) (domain.Activity, error)
	User(ctx context.Context, userID string) (domain.User, error)
	SetActive(ctx context.Context, userID string, active bool) error
	SetAdmin(ctx context.Context, userID string, admin bool) error
}

type Handler struct {
	svc    Service
	logger *slog.Logger
	mux    *http.ServeMux
}

func NewHandler(svc Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /auth/register", h.Register)
	h.mux.HandleFunc("POST /auth/login", h.Login)
	h.mux.HandleFunc("POST /auth/logout", h.Logout)
	h.mux.HandleFunc("POST /auth/refresh", h.Refresh)
	h.mux.HandleFunc("GET /auth/me", h.Me)
	h.mux.HandleFunc("POST /admin/users/{id}/deactivate", h.setActive(false))
	h.mux.HandleFunc("POST /admin/users/{id}/activate", h.setActive(true))
	h.mux.HandleFunc("POST /admin/users/{id}/promote", h.promote)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	domain.Token
	User domain.PublicUser `json:"user"`
}

type meResponse struct {
	User     domain.PublicUser `json:"user"`
	Activity domain.Activity   `json:"activity"`
}

// Register cria a conta e já devolve um token.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var in domain.RegisterInput
	if !h.decode(w, r, &in) {
		return
	}

	u, err := h.svc.Register(ctx, in)
	if err != nil {
		h.fail(w, r, "register", err)
		return
	}
	tok, err := h.svc.Issue(u)
	if err != nil {
		h.fail(w, r, "register", err)
		return
	}

	h.sendJSON(w, tokenResponse{Token: tok, User: u.Public()}, http.StatusCreated)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	u, tok, err := h.svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}

	h.sendJSON(w, tokenResponse{Token: tok, User: u.Public()}, http.StatusOK)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := h.bearer(w, r)
	if !ok {
		return
	}
	if err := h.svc.Logout(r.Context(), token); err != nil {
		h.fail(w, r, "logout", err)
		return
	}
	h.sendJSON(w, map[string]string{"message": "logged out"}, http.StatusOK)
}

// Refresh revoga o token atual e devolve um novo.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, ok := h.bearer(w, r)
	if !ok {
		return
	}
	tok, err := h.svc.Refresh(r.Context(), token)
	if err != nil {
		h.fail(w, r, "refresh", err)
		return
	}
	h.sendJSON(w, tok, http.StatusOK)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	act, err := h.svc.Activity(r.Context(), u.ID)
	if err != nil {
		h.fail(w, r, "activity", err)
		return
	}
	h.sendJSON(w, meResponse{User: u.Public(), Activity: act}, http.StatusOK)
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.adminUpdate(w, r, opSetActive, func(ctx context.Context, id string) error {
			return h.svc.SetActive(ctx, id, active)
		})
	}
}

func (h *Handler) promote(w http.ResponseWriter, r *http.Request) {
	h.adminUpdate(w, r, opPromote, func(ctx context.Context, id string) error {
		return h.svc.SetAdmin(ctx, id, true)
	})
}

func (h *Handler) adminUpdate(w http.ResponseWriter, r *http.Request, op string, apply func(ctx context.Context, id string) error) {
	ctx := r.Context()
	admin, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if !admin.IsAdmin {
		h.sendError(w, "admin privileges required", http.StatusForbidden)
		return
	}

	id := r.PathValue("id")
	if err := apply(ctx, id); err != nil {
		h.fail(w, r, op, err)
		return
	}
	u, err := h.svc.User(ctx, id)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}

	h.logger.InfoContext(ctx, "user updated by admin",
		slog.String("op", op),
		slog.String("user_id", id),
		slog.String("admin_id", admin.ID))
	h.sendJSON(w, u.Public(), http.StatusOK)
}

// authenticate exige um bearer válido. Não confia na identidade do contexto:
// o gatekeeper pode ter rebaixado um token inválido para anônimo.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	token, ok := h.bearer(w, r)
	if !ok {
		return domain.User{}, false
	}
	u, err := h.svc.Verify(r.Context(), token)
	if err != nil {
		h.fail(w, r, "verify", err)
		return domain.User{}, false
	}
	return u, true
}

func (h *Handler) bearer(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := gatekeeper.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		w.Header().Set("WWW-Authenticate", "Bearer")
		h.sendError(w, "missing bearer token", http.StatusUnauthorized)
		return "", false
	}
	return token, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.logger.WarnContext(r.Context(), "failed to decode request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// fail traduz erros da camada de sessão em status HTTP.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	switch domain.Classify(err) {
	case domain.ClassValidation:
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrUsernameTaken) || errors.Is(err, domain.ErrEmailTaken) {
			status = http.StatusConflict
		}
		h.sendError(w, err.Error(), status)
	case domain.ClassAuthentication:
		switch {
		case op == "login" && errors.Is(err, domain.ErrInvalidCredentials):
			h.sendError(w, domain.ErrInvalidCredentials.Error(), http.StatusUnauthorized)
		case errors.Is(err, domain.ErrUserNotFound) && isAdminOp(op):
			h.sendError(w, domain.ErrUserNotFound.Error(), http.StatusNotFound)
		default:
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			h.sendError(w, err.Error(), http.StatusUnauthorized)
		}
	case domain.ClassInfrastructure:
		h.logger.ErrorContext(ctx, "session store unavailable", slog.String("op", op), slog.Any("error", err))
		h.sendError(w, "service temporarily unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.ErrorContext(ctx, "session request failed", slog.String("op", op), slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
	}
}

// isAdminOp: só as rotas /admin/users/{id} tratam usuário ausente como 404.
func isAdminOp(op string) bool {
	return op == opSetActive || op == opPromote
}

func (h *Handler) sendJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func (h *Handler) sendError(w http.ResponseWriter, msg string, status int) {
	h.sendJSON(w, map[string]string{"error": msg}, status)
}
