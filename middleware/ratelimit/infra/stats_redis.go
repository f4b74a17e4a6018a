package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// statsKeys monta as chaves dos hashes de veredito sob um prefixo.
type statsKeys string

func (p statsKeys) total() string    { return string(p) + ":total" }
func (p statsKeys) endpoint() string { return string(p) + ":endpoint" }
func (p statsKeys) tier() string     { return string(p) + ":tier" }
func (p statsKeys) denials() string  { return string(p) + ":denied_by" }

func (p statsKeys) client(k domain.Key) string { return string(p) + ":client:" + string(k) }

// series identifica o balde pelo início em unix segundos, UTC.
func (p statsKeys) series(at time.Time, res time.Duration) string {
	return string(p) + ":series:" + strconv.FormatInt(at.UTC().Truncate(res).Unix(), 10)
}

// RedisStatsStore soma os vereditos do gatekeeper em hashes Redis: total,
// por endpoint, por tier, pela janela que negou e, opcionalmente, por
// cliente e numa série temporal. Os campos são "allowed"/"denied"
// (prefixados por endpoint ou tier quando agrupados).
type RedisStatsStore struct {
	rdb  *redis.Client
	keys statsKeys

	// retention expira série e contadores por cliente; os agregados não.
	retention  time.Duration
	resolution time.Duration // 0 desliga a série
	perClient  bool
	timeout    time.Duration
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.keys = statsKeys(p)
		}
	}
}

func WithStatsRetention(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.retention = d }
}

// WithStatsSeries define a largura dos baldes da série; <= 0 desliga.
func WithStatsSeries(resolution time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.resolution = max(resolution, 0) }
}

// WithStatsPerClient liga os contadores por cliente. Cardinalidade alta.
func WithStatsPerClient(on bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.perClient = on }
}

func WithStatsTimeout(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.timeout = d }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:        rdb,
		keys:       "ratelimit:stats",
		retention:  24 * time.Hour,
		resolution: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record grava um veredito num único pipeline.
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	outcome := "denied"
	if ev.Allowed {
		outcome = "allowed"
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.keys.total(), outcome, 1)
	if ev.Degraded {
		pipe.HIncrBy(ctx, s.keys.total(), "degraded", 1)
	}
	if ev.Endpoint != "" {
		pipe.HIncrBy(ctx, s.keys.endpoint(), ev.Endpoint+":"+outcome, 1)
	}
	if ev.Tier != "" {
		pipe.HIncrBy(ctx, s.keys.tier(), string(ev.Tier)+":"+outcome, 1)
	}
	if !ev.Allowed && ev.Window != "" {
		pipe.HIncrBy(ctx, s.keys.denials(), ev.Window, 1)
	}
	if s.resolution > 0 {
		s.incrExpiring(ctx, pipe, s.keys.series(at, s.resolution), outcome)
	}
	if s.perClient && ev.Key != "" {
		s.incrExpiring(ctx, pipe, s.keys.client(ev.Key), outcome)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record stats: %w", err)
	}
	return nil
}

func (s *RedisStatsStore) incrExpiring(ctx context.Context, pipe redis.Pipeliner, key, field string) {
	pipe.HIncrBy(ctx, key, field, 1)
	if s.retention > 0 {
		pipe.Expire(ctx, key, s.retention)
	}
}
