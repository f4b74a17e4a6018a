package infra

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingScript faz prune, contagem e registro de todas as janelas numa única execução.
//
// KEYS: um log por janela, da mais curta para a mais longa.
// ARGV[1]=member, ARGV[2]=now_ms e, por janela, window_ms, limit, window_start_ms.
// Retorno: {allowed, índice da janela, contagem, reset_ms}.
//
// Os argumentos de redis.call são repassados como string; timestamps em ms não
// sobrevivem à formatação numérica do Lua.
var slidingScript = redis.NewScript(`
local member = ARGV[1]
local now = tonumber(ARGV[2])
local counts = {}

for i = 1, #KEYS do
	local base = 2 + (i - 1) * 3
	local window = tonumber(ARGV[base + 1])
	local limit = tonumber(ARGV[base + 2])

	redis.call('ZREMRANGEBYSCORE', KEYS[i], '-inf', ARGV[base + 3])
	local count = redis.call('ZCARD', KEYS[i])
	if count >= limit then
		local reset = now + window
		local oldest = redis.call('ZRANGE', KEYS[i], '0', '0', 'WITHSCORES')
		if oldest[2] then
			reset = tonumber(oldest[2]) + window
		end
		return {0, i, count, reset}
	end
	counts[i] = count
end

for i = 1, #KEYS do
	local base = 2 + (i - 1) * 3
	redis.call('ZADD', KEYS[i], ARGV[2], member)
	redis.call('PEXPIRE', KEYS[i], ARGV[base + 1])
end

local window = tonumber(ARGV[3])
local reset = now + window
local oldest = redis.call('ZRANGE', KEYS[1], '0', '0', 'WITHSCORES')
if oldest[2] then
	reset = tonumber(oldest[2]) + window
end
return {1, 1, counts[1] + 1, reset}
`)

// RedisWindowStore implementa domain.WindowStore com um sorted set por
// (cliente, endpoint, janela).
type RedisWindowStore struct {
	rdb *redis.Client

	keys KeySpace
	// timeout de cada chamada ao Redis; estourar vira ErrLimiterUnavailable.
	timeout time.Duration
	now     func() time.Time
}

type WindowStoreOption func(*RedisWindowStore)

func WithKeyPrefix(prefix string) WindowStoreOption {
	return func(s *RedisWindowStore) { s.keys = NewKeySpace(prefix) }
}

func WithOpTimeout(d time.Duration) WindowStoreOption {
	return func(s *RedisWindowStore) { s.timeout = d }
}

func WithClock(now func() time.Time) WindowStoreOption {
	return func(s *RedisWindowStore) { s.now = now }
}

func NewRedisWindowStore(rdb *redis.Client, opts ...WindowStoreOption) *RedisWindowStore {
	s := &RedisWindowStore{
		rdb:     rdb,
		keys:    NewKeySpace(DefaultKeyPrefix),
		timeout: 250 * time.Millisecond,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisWindowStore) Keys() KeySpace { return s.keys }

// Evaluate implementa domain.WindowStore.
func (s *RedisWindowStore) Evaluate(ctx context.Context, clientID, endpoint string, limits []domain.WindowLimit) (domain.Decision, error) {
	if len(limits) == 0 {
		return domain.Decision{Allowed: true}, nil
	}

	now := s.now()
	nowMs := now.UnixMilli()

	keys := make([]string, 0, len(limits))
	args := make([]interface{}, 0, 2+3*len(limits))
	args = append(args, strconv.FormatInt(nowMs, 10)+"-"+uuid.NewString(), strconv.FormatInt(nowMs, 10))
	for _, wl := range limits {
		windowMs := wl.Window.Size.Milliseconds()
		keys = append(keys, s.keys.Window(clientID, endpoint, wl.Window.Name))
		args = append(args,
			strconv.FormatInt(windowMs, 10),
			strconv.Itoa(wl.Limit),
			strconv.FormatInt(nowMs-windowMs, 10),
		)
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	vals, err := slidingScript.Run(opCtx, s.rdb, keys, args...).Slice()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("%w: evaluate %s %s: %w", domain.ErrLimiterUnavailable, clientID, endpoint, err)
	}
	if len(vals) != 4 {
		return domain.Decision{}, fmt.Errorf("%w: unexpected script result %#v", domain.ErrLimiterUnavailable, vals)
	}

	allowed := asInt64(vals[0]) == 1
	idx := int(asInt64(vals[1])) - 1
	count := int(asInt64(vals[2]))
	resetAt := time.UnixMilli(asInt64(vals[3]))
	if idx < 0 || idx >= len(limits) {
		return domain.Decision{}, fmt.Errorf("%w: window index %d out of range", domain.ErrLimiterUnavailable, idx+1)
	}
	wl := limits[idx]

	if !allowed {
		return domain.Decision{
			Allowed: false,
			Window:  wl.Window,
			Limit:   wl.Limit,
			ResetAt: resetAt,
		}, nil
	}

	remaining := wl.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return domain.Decision{
		Allowed:   true,
		Window:    wl.Window,
		Limit:     wl.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

func (s *RedisWindowStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
