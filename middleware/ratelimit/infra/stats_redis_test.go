package infra

import (
	"context"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStatsRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisStatsStore_Record(t *testing.T) {
	mr, rdb := newStatsRedis(t)
	s := NewRedisStatsStore(rdb,
		WithStatsPrefix("stats:"),
		WithStatsPerClient(true),
		WithStatsRetention(time.Hour),
		WithStatsSeries(5*time.Minute),
	)
	ctx := context.Background()
	at := time.Date(2024, 5, 10, 12, 33, 20, 0, time.UTC)

	events := []domain.StatsEvent{
		{Key: "user:u1", Tier: domain.TierAuthenticated, Endpoint: "/ml/sentiment", Allowed: true, At: at},
		{Key: "user:u1", Tier: domain.TierAuthenticated, Endpoint: "/ml/sentiment", Allowed: false, Window: "minute", At: at},
		{Key: "ip:1.2.3.4", Tier: domain.TierAnonymous, Endpoint: "/search", Allowed: true, Degraded: true, At: at},
	}
	for _, ev := range events {
		require.NoError(t, s.Record(ctx, ev))
	}

	assert.Equal(t, "2", mr.HGet("stats:total", "allowed"))
	assert.Equal(t, "1", mr.HGet("stats:total", "denied"))
	assert.Equal(t, "1", mr.HGet("stats:total", "degraded"))
	assert.Equal(t, "1", mr.HGet("stats:endpoint", "/ml/sentiment:denied"))
	assert.Equal(t, "1", mr.HGet("stats:tier", "anonymous:allowed"))
	assert.Equal(t, "1", mr.HGet("stats:denied_by", "minute"))
	assert.Equal(t, "1", mr.HGet("stats:client:user:u1", "allowed"))
	assert.Equal(t, time.Hour, mr.TTL("stats:client:user:u1"))

	// 12:33:20 cai no balde de 12:30
	bucket := "stats:series:" + "1715344200"
	assert.Equal(t, "2", mr.HGet(bucket, "allowed"))
	assert.Equal(t, time.Hour, mr.TTL(bucket))
	assert.Zero(t, mr.TTL("stats:total"), "aggregates never expire")
}

func TestRedisStatsStore_DefaultsSkipClientsAndKeepMinuteSeries(t *testing.T) {
	mr, rdb := newStatsRedis(t)
	at := time.Date(2024, 5, 10, 12, 30, 59, 0, time.UTC)

	require.NoError(t, NewRedisStatsStore(rdb).Record(context.Background(),
		domain.StatsEvent{Key: "ip:1.2.3.4", Allowed: true, At: at}))

	assert.Equal(t, []string{"ratelimit:stats:series:1715344200", "ratelimit:stats:total"}, mr.Keys())
}

func TestRedisStatsStore_SeriesDisabled(t *testing.T) {
	mr, rdb := newStatsRedis(t)

	require.NoError(t, NewRedisStatsStore(rdb, WithStatsSeries(0)).Record(context.Background(),
		domain.StatsEvent{Allowed: false, Window: "hour"}))

	assert.Equal(t, []string{"ratelimit:stats:denied_by", "ratelimit:stats:total"}, mr.Keys())
}

func TestRedisStatsStore_StoreDown(t *testing.T) {
	mr, rdb := newStatsRedis(t)
	mr.SetError("ERR store down")

	err := NewRedisStatsStore(rdb, WithStatsTimeout(time.Second)).Record(context.Background(), domain.StatsEvent{Allowed: true})
	assert.ErrorContains(t, err, "record stats")
}
