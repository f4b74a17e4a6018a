package infra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisActivityStore_RecordAndRead(t *testing.T) {
	rdb, mr := newRedis(t)
	s := NewRedisActivityStore(rdb)
	ctx := context.Background()
	day1 := time.Date(2024, 5, 10, 23, 0, 0, 0, time.UTC)
	day2 := day1.Add(2 * time.Hour)

	require.NoError(t, s.Record(ctx, "u1", "/search", day1))
	require.NoError(t, s.Record(ctx, "u1", "/search", day1))
	require.NoError(t, s.Record(ctx, "u1", "/ml/sentiment", day2))

	c, err := s.Read(ctx, "u1", day2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.Total)
	assert.Equal(t, int64(1), c.Today)
	assert.Equal(t, []string{"/search", "/ml/sentiment"}, c.Endpoints)

	assert.Equal(t, "2", mustGet(t, mr.Get, "user_daily:u1:2024-05-10"))
	assert.Equal(t, 24*time.Hour, mr.TTL("user_daily:u1:2024-05-11"))
}

func TestRedisActivityStore_RankingCappedAtTen(t *testing.T) {
	rdb, mr := newRedis(t)
	s := NewRedisActivityStore(rdb)
	ctx := context.Background()
	at := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	// /e0 recebe mais hits, /e11 é o último a entrar e o menos usado
	for i := 0; i < 12; i++ {
		for j := 0; j <= 12-i; j++ {
			require.NoError(t, s.Record(ctx, "u1", fmt.Sprintf("/e%d", i), at))
		}
	}

	members, err := mr.ZMembers("user_endpoints:u1")
	require.NoError(t, err)
	assert.Len(t, members, 10)
	assert.NotContains(t, members, "/e11")
	assert.NotContains(t, members, "/e10")

	c, err := s.Read(ctx, "u1", at)
	require.NoError(t, err)
	assert.Equal(t, "/e0", c.Endpoints[0])
}

func TestRedisActivityStore_ReadUnknownUser(t *testing.T) {
	rdb, _ := newRedis(t)
	s := NewRedisActivityStore(rdb)

	c, err := s.Read(context.Background(), "ghost", time.Now())
	require.NoError(t, err)
	assert.Zero(t, c.Total)
	assert.Zero(t, c.Today)
	assert.Empty(t, c.Endpoints)
}

func mustGet(t *testing.T, get func(string) (string, error), key string) string {
	t.Helper()
	v, err := get(key)
	require.NoError(t, err)
	return v
}
