package infra

import (
	"context"
	"errors"
	"time"

	"admission-gateway/middleware/session/domain"

	"github.com/redis/go-redis/v9"
)

const (
	topEndpoints = 10
	dailyTTL     = 24 * time.Hour
)

// RedisActivityStore mantém os contadores de uso por usuário.
type RedisActivityStore struct {
	rdb     *redis.Client
	timeout time.Duration
}

type ActivityOption func(*RedisActivityStore)

func WithActivityTimeout(d time.Duration) ActivityOption {
	return func(s *RedisActivityStore) { s.timeout = d }
}

func NewRedisActivityStore(rdb *redis.Client, opts ...ActivityOption) *RedisActivityStore {
	s := &RedisActivityStore{rdb: rdb, timeout: defaultOpTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record incrementa total, contador diário (TTL 24h) e o ranking de endpoints,
// que é cortado para os 10 maiores a cada incremento.
func (s *RedisActivityStore) Record(ctx context.Context, userID, endpoint string, at time.Time) error {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	daily := dailyKey(userID, at)
	ranking := endpointsKey(userID)

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, statsKey(userID), "total_requests", 1)
		pipe.Incr(ctx, daily)
		pipe.Expire(ctx, daily, dailyTTL)
		pipe.ZIncrBy(ctx, ranking, 1, endpoint)
		pipe.ZRemRangeByRank(ctx, ranking, 0, -(topEndpoints + 1))
		return nil
	})
	if err != nil {
		return unavailable("record activity", err)
	}
	return nil
}

func (s *RedisActivityStore) Read(ctx context.Context, userID string, at time.Time) (domain.ActivityCounters, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	var (
		total *redis.StringCmd
		today *redis.StringCmd
		top   *redis.StringSliceCmd
	)
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		total = pipe.HGet(ctx, statsKey(userID), "total_requests")
		today = pipe.Get(ctx, dailyKey(userID, at))
		top = pipe.ZRevRange(ctx, endpointsKey(userID), 0, topEndpoints-1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.ActivityCounters{}, unavailable("read activity", err)
	}

	out := domain.ActivityCounters{Endpoints: top.Val()}
	if out.Total, err = total.Int64(); err != nil && !errors.Is(err, redis.Nil) {
		return domain.ActivityCounters{}, err
	}
	if out.Today, err = today.Int64(); err != nil && !errors.Is(err, redis.Nil) {
		return domain.ActivityCounters{}, err
	}
	if out.Endpoints == nil {
		out.Endpoints = []string{}
	}
	return out, nil
}
