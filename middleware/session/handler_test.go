package session_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"admission-gateway/middleware/session"
	"admission-gateway/middleware/session/application"
	"admission-gateway/middleware/session/domain"
	"admission-gateway/middleware/session/infra"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type handlerFixture struct {
	h    http.Handler
	m    *application.Manager
	mr   *miniredis.Miniredis
	logs *bytes.Buffer
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	now := func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }
	tokens, err := infra.NewJWTIssuer([]byte("test-secret"), infra.WithTokenClock(now))
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	m := application.NewManager(application.Deps{
		Users:     infra.NewRedisUserStore(rdb),
		Blacklist: infra.NewRedisBlacklist(rdb, infra.WithoutLocalCache()),
		Activity:  infra.NewRedisActivityStore(rdb),
		Tokens:    tokens,
		Vault:     infra.NewBcryptVault(bcrypt.MinCost, nil),
	}, application.WithClock(now), application.WithLogger(logger))

	return &handlerFixture{h: session.NewHandler(m, logger), m: m, mr: mr, logs: logs}
}

func (f *handlerFixture) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(method, target, rd)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, r)
	return w
}

type tokenBody struct {
	AccessToken string            `json:"access_token"`
	TokenType   string            `json:"token_type"`
	ExpiresIn   int64             `json:"expires_in"`
	User        domain.PublicUser `json:"user"`
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (f *handlerFixture) register(t *testing.T, username string) tokenBody {
	t.Helper()
	w := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "Passw0rd",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[tokenBody](t, w)
}

func TestHandler_RegisterReturnsUserAndToken(t *testing.T) {
	f := newHandlerFixture(t)

	body := f.register(t, "Alice")
	assert.NotEmpty(t, body.AccessToken)
	assert.Equal(t, "bearer", body.TokenType)
	assert.Equal(t, int64(24*3600), body.ExpiresIn)
	assert.Equal(t, "alice", body.User.Username)

	assert.NotContains(t, f.do(t, http.MethodGet, "/auth/me", body.AccessToken, nil).Body.String(), "password")
}

func TestHandler_RegisterErrors(t *testing.T) {
	f := newHandlerFixture(t)
	f.register(t, "alice")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"duplicate username", map[string]string{"username": "alice", "email": "new@example.com", "password": "Passw0rd"}, http.StatusConflict},
		{"duplicate email", map[string]string{"username": "bob", "email": "alice@example.com", "password": "Passw0rd"}, http.StatusConflict},
		{"weak password", map[string]string{"username": "bob", "email": "bob@example.com", "password": "password"}, http.StatusBadRequest},
		{"bad username", map[string]string{"username": "b!", "email": "bob@example.com", "password": "Passw0rd"}, http.StatusBadRequest},
		{"password over 72 bytes", map[string]string{"username": "bob", "email": "bob@example.com", "password": "Aa1" + strings.Repeat("é", 40)}, http.StatusBadRequest},
		{"unknown field", map[string]string{"username": "bob", "email": "bob@example.com", "password": "Passw0rd", "role": "admin"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/auth/register", "", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestHandler_LoginUniformFailure(t *testing.T) {
	f := newHandlerFixture(t)
	f.register(t, "alice")

	w := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "Passw0rd"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody[tokenBody](t, w)
	assert.NotEmpty(t, body.AccessToken)
	require.NotNil(t, body.User.LastLogin)

	wrong := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "Wrong1234"})
	unknown := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "ghost", "password": "Passw0rd"})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.JSONEq(t, wrong.Body.String(), unknown.Body.String())
}

func TestHandler_RegisterAndLoginLogOnce(t *testing.T) {
	f := newHandlerFixture(t)
	f.register(t, "alice")
	w := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "Passw0rd"})
	require.Equal(t, http.StatusOK, w.Code)

	out := f.logs.String()
	assert.Equal(t, 1, strings.Count(out, `msg="user registered"`), out)
	assert.Equal(t, 1, strings.Count(out, `msg="user logged in"`), out)
}

func TestHandler_LogoutRevokesToken(t *testing.T) {
	f := newHandlerFixture(t)
	tok := f.register(t, "alice").AccessToken

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/auth/me", tok, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/auth/logout", tok, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/auth/logout", tok, nil).Code, "logout is idempotent")

	w := f.do(t, http.MethodGet, "/auth/me", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrTokenRevoked.Error())
}

func TestHandler_RefreshSwapsTokens(t *testing.T) {
	f := newHandlerFixture(t)
	old := f.register(t, "alice").AccessToken

	w := f.do(t, http.MethodPost, "/auth/refresh", old, nil)
	require.Equal(t, http.StatusOK, w.Code)
	fresh := decodeBody[tokenBody](t, w).AccessToken
	require.NotEqual(t, old, fresh)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/auth/me", old, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/auth/me", fresh, nil).Code)
}

func TestHandler_MeIncludesActivity(t *testing.T) {
	f := newHandlerFixture(t)
	body := f.register(t, "alice")
	require.NoError(t, f.m.RecordActivity(context.Background(), body.User.ID, "/ml/sentiment"))

	w := f.do(t, http.MethodGet, "/auth/me", body.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decodeBody[struct {
		User     domain.PublicUser `json:"user"`
		Activity domain.Activity   `json:"activity"`
	}](t, w)
	assert.Equal(t, body.User.ID, me.User.ID)
	assert.Equal(t, int64(1), me.Activity.TotalRequests)
	assert.Equal(t, []string{"/ml/sentiment"}, me.Activity.FavoriteEndpoints)
}

func TestHandler_MissingBearer(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
}

func TestHandler_VanishedUserIsInvalidToken(t *testing.T) {
	f := newHandlerFixture(t)
	body := f.register(t, "alice")
	f.mr.Del("user:" + body.User.ID)

	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/auth/me"},
		{http.MethodPost, "/auth/refresh"},
	} {
		t.Run(tc.target, func(t *testing.T) {
			w := f.do(t, tc.method, tc.target, body.AccessToken, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Header().Get("WWW-Authenticate"), "invalid_token")
		})
	}
}

func TestHandler_AdminDeactivateActivatePromote(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	root, err := f.m.EnsureAdmin(ctx, domain.RegisterInput{Username: "root", Email: "root@example.com", Password: "R00tpass"})
	require.NoError(t, err)
	rootTok, err := f.m.Issue(root)
	require.NoError(t, err)

	bob := f.register(t, "bob")

	// usuário comum não administra
	w := f.do(t, http.MethodPost, "/admin/users/"+bob.User.ID+"/deactivate", bob.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/admin/users/"+bob.User.ID+"/deactivate", rootTok.Value, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeBody[domain.PublicUser](t, w).IsActive)

	w = f.do(t, http.MethodGet, "/auth/me", bob.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrAccountDeactivated.Error())

	w = f.do(t, http.MethodPost, "/admin/users/"+bob.User.ID+"/activate", rootTok.Value, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/auth/me", bob.AccessToken, nil).Code)

	w = f.do(t, http.MethodPost, "/admin/users/"+bob.User.ID+"/promote", rootTok.Value, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeBody[domain.PublicUser](t, w).IsAdmin)

	w = f.do(t, http.MethodPost, "/admin/users/nope/promote", rootTok.Value, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_StoreDownIs503(t *testing.T) {
	f := newHandlerFixture(t)
	f.mr.SetError("ERR store down")

	w := f.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "Passw0rd",
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
