package infra

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// RedisBlacklist guarda tokens revogados em blacklist:<token> com TTL igual à
// validade restante.
//
// Revogação é terminal, então um resultado positivo pode ficar no cache local
// até a expiração do próprio token. Negativos nunca são cacheados.
type RedisBlacklist struct {
	rdb     *redis.Client
	timeout time.Duration
	local   *cache.Cache
}

type BlacklistOption func(*RedisBlacklist)

func WithBlacklistTimeout(d time.Duration) BlacklistOption {
	return func(b *RedisBlacklist) { b.timeout = d }
}

// WithoutLocalCache desliga o cache em processo (toda consulta vai ao Redis).
func WithoutLocalCache() BlacklistOption {
	return func(b *RedisBlacklist) { b.local = nil }
}

func NewRedisBlacklist(rdb *redis.Client, opts ...BlacklistOption) *RedisBlacklist {
	b := &RedisBlacklist{
		rdb:     rdb,
		timeout: defaultOpTimeout,
		local:   cache.New(cache.NoExpiration, time.Minute),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add é idempotente. ttl <= 0 (token já expirado) não grava nada.
func (b *RedisBlacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	if err := b.rdb.Set(ctx, blacklistKey(token), "", ttl).Err(); err != nil {
		return unavailable("blacklist token", err)
	}
	if b.local != nil {
		b.local.Set(token, struct{}{}, ttl)
	}
	return nil
}

func (b *RedisBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	if b.local != nil {
		if _, ok := b.local.Get(token); ok {
			return true, nil
		}
	}

	ctx, cancel := opContext(ctx, b.timeout)
	defer cancel()

	ttl, err := b.rdb.PTTL(ctx, blacklistKey(token)).Result()
	if err != nil {
		return false, unavailable("check blacklist", err)
	}
	// go-redis devolve -2 (não existe) e -1 (sem expiração) crus, sem escala
	switch {
	case ttl == -2:
		return false, nil
	case ttl < 0:
		if b.local != nil {
			b.local.Set(token, struct{}{}, cache.NoExpiration)
		}
		return true, nil
	}
	if b.local != nil {
		b.local.Set(token, struct{}{}, ttl)
	}
	return true, nil
}
