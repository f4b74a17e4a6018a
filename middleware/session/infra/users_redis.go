package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"admission-gateway/middleware/session/domain"

	"github.com/redis/go-redis/v9"
)

// setFieldScript só altera o hash se o usuário existir.
var setFieldScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// releaseScript apaga uma reivindicação só se ela ainda apontar para o id dado.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisUserStore guarda usuários em hashes user:<id>, com os índices
// username:<name> e email:<addr> reivindicados via SETNX.
type RedisUserStore struct {
	rdb     *redis.Client
	timeout time.Duration
}

type UserStoreOption func(*RedisUserStore)

func WithUserTimeout(d time.Duration) UserStoreOption {
	return func(s *RedisUserStore) { s.timeout = d }
}

func NewRedisUserStore(rdb *redis.Client, opts ...UserStoreOption) *RedisUserStore {
	s := &RedisUserStore{rdb: rdb, timeout: defaultOpTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisUserStore) Create(ctx context.Context, u domain.User) error {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	ok, err := s.rdb.SetNX(ctx, usernameKey(u.Username), u.ID, 0).Result()
	if err != nil {
		return unavailable("claim username", err)
	}
	if !ok {
		return domain.ErrUsernameTaken
	}

	ok, err = s.rdb.SetNX(ctx, emailKey(u.Email), u.ID, 0).Result()
	if err != nil {
		// o SETNX pode ter sido aplicado antes do erro: solta as duas
		s.release(ctx, u.ID, usernameKey(u.Username), emailKey(u.Email))
		return unavailable("claim email", err)
	}
	if !ok {
		s.release(ctx, u.ID, usernameKey(u.Username))
		return domain.ErrEmailTaken
	}

	if err := s.rdb.HSet(ctx, userKey(u.ID), userFields(u)).Err(); err != nil {
		s.release(ctx, u.ID, usernameKey(u.Username), emailKey(u.Email))
		return unavailable("create user", err)
	}
	return nil
}

// release desfaz reivindicações feitas por id, uma chave por vez (slots
// diferentes no Cluster). Melhor esforço, com prazo próprio.
func (s *RedisUserStore) release(ctx context.Context, id string, keys ...string) {
	ctx, cancel := opContext(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	for _, k := range keys {
		_ = releaseScript.Run(ctx, s.rdb, []string{k}, id).Err()
	}
}

func (s *RedisUserStore) Get(ctx context.Context, id string) (domain.User, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	m, err := s.rdb.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return domain.User{}, unavailable("get user", err)
	}
	if len(m) == 0 {
		return domain.User{}, domain.ErrUserNotFound
	}
	return parseUser(m)
}

func (s *RedisUserStore) IDByUsername(ctx context.Context, username string) (string, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	id, err := s.rdb.Get(ctx, usernameKey(username)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrUserNotFound
	}
	if err != nil {
		return "", unavailable("lookup username", err)
	}
	return id, nil
}

func (s *RedisUserStore) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	return s.setField(ctx, id, "last_login", at.UTC().Format(time.RFC3339Nano))
}

func (s *RedisUserStore) SetActive(ctx context.Context, id string, active bool) error {
	return s.setField(ctx, id, "is_active", strconv.FormatBool(active))
}

func (s *RedisUserStore) SetAdmin(ctx context.Context, id string, admin bool) error {
	return s.setField(ctx, id, "is_admin", strconv.FormatBool(admin))
}

func (s *RedisUserStore) setField(ctx context.Context, id, field, value string) error {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	n, err := setFieldScript.Run(ctx, s.rdb, []string{userKey(id)}, field, value).Int()
	if err != nil {
		return unavailable("set "+field, err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func userFields(u domain.User) map[string]interface{} {
	lastLogin := ""
	if !u.LastLogin.IsZero() {
		lastLogin = u.LastLogin.UTC().Format(time.RFC3339Nano)
	}
	return map[string]interface{}{
		"user_id":       u.ID,
		"username":      u.Username,
		"email":         u.Email,
		"password_hash": u.PasswordHash,
		"full_name":     u.DisplayName,
		"is_admin":      strconv.FormatBool(u.IsAdmin),
		"is_active":     strconv.FormatBool(u.IsActive),
		"created_at":    u.CreatedAt.UTC().Format(time.RFC3339Nano),
		"last_login":    lastLogin,
	}
}

func parseUser(m map[string]string) (domain.User, error) {
	u := domain.User{
		ID:           m["user_id"],
		Username:     m["username"],
		Email:        m["email"],
		PasswordHash: m["password_hash"],
		DisplayName:  m["full_name"],
		IsAdmin:      m["is_admin"] == "true",
		// registros antigos sem o campo contam como ativos
		IsActive: m["is_active"] != "false",
	}

	var err error
	if v := m["created_at"]; v != "" {
		if u.CreatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return domain.User{}, fmt.Errorf("parse created_at of %s: %w", u.ID, err)
		}
	}
	if v := m["last_login"]; v != "" {
		if u.LastLogin, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return domain.User{}, fmt.Errorf("parse last_login of %s: %w", u.ID, err)
		}
	}
	return u, nil
}
