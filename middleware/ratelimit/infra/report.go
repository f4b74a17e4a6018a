package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// sweepScript poda um log e apaga a chave se ficou vazia, atomicamente.
var sweepScript = redis.NewScript(`
local removed = redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) == 0 then
	redis.call('DEL', KEYS[1])
end
return removed
`)

const scanCount = 500

// scan percorre as chaves que casam com pattern. Só para rotas administrativas.
func (s *RedisWindowStore) scan(ctx context.Context, pattern string, fn func(key string) error) error {
	var cursor uint64
	for {
		opCtx, cancel := s.opContext(ctx)
		keys, next, err := s.rdb.Scan(opCtx, cursor, pattern, scanCount).Result()
		cancel()
		if err != nil {
			return fmt.Errorf("%w: scan %q: %w", domain.ErrLimiterUnavailable, pattern, err)
		}
		for _, k := range keys {
			if err := fn(k); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

type windowKey struct {
	key      string
	clientID string
	endpoint string
	window   domain.Window
}

func (s *RedisWindowStore) collect(ctx context.Context, pattern string) ([]windowKey, error) {
	var out []windowKey
	err := s.scan(ctx, pattern, func(key string) error {
		client, endpoint, name, ok := s.keys.Parse(key)
		if !ok {
			return nil
		}
		w, ok := domain.WindowByName(name)
		if !ok {
			return nil
		}
		out = append(out, windowKey{key: key, clientID: client, endpoint: endpoint, window: w})
		return nil
	})
	return out, err
}

// counts faz ZCOUNT (now-window, +inf] de cada chave num pipeline.
func (s *RedisWindowStore) counts(ctx context.Context, keys []windowKey) ([]int64, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	nowMs := s.now().UnixMilli()

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(keys))
	for i, k := range keys {
		min := "(" + strconv.FormatInt(nowMs-k.window.Size.Milliseconds(), 10)
		cmds[i] = pipe.ZCount(opCtx, k.key, min, "+inf")
	}
	if _, err := pipe.Exec(opCtx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: count windows: %w", domain.ErrLimiterUnavailable, err)
	}

	out := make([]int64, len(keys))
	for i, c := range cmds {
		out[i] = c.Val()
	}
	return out, nil
}

// Usage devolve as contagens atuais por endpoint e janela de um cliente.
func (s *RedisWindowStore) Usage(ctx context.Context, clientID string) (domain.Usage, error) {
	keys, err := s.collect(ctx, s.keys.ClientPattern(clientID))
	if err != nil {
		return nil, err
	}
	counts, err := s.counts(ctx, keys)
	if err != nil {
		return nil, err
	}

	usage := domain.Usage{}
	for i, k := range keys {
		if usage[k.endpoint] == nil {
			usage[k.endpoint] = map[string]int64{}
		}
		usage[k.endpoint][k.window.Name] = counts[i]
	}
	return usage, nil
}

// Reset apaga todas as janelas de um cliente (ou só de um endpoint). Devolve quantas chaves saíram.
func (s *RedisWindowStore) Reset(ctx context.Context, clientID, endpoint string) (int64, error) {
	pattern := s.keys.ClientPattern(clientID)
	if endpoint != "" {
		pattern = s.keys.EndpointPattern(clientID, endpoint)
	}

	var keys []string
	if err := s.scan(ctx, pattern, func(key string) error {
		keys = append(keys, key)
		return nil
	}); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	n, err := s.rdb.Del(opCtx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: reset %s: %w", domain.ErrLimiterUnavailable, clientID, err)
	}
	return n, nil
}

// Snapshot agrega todas as chaves conhecidas. Custa um SCAN completo.
func (s *RedisWindowStore) Snapshot(ctx context.Context, topN int) (domain.Snapshot, error) {
	keys, err := s.collect(ctx, s.keys.AllPattern())
	if err != nil {
		return domain.Snapshot{}, err
	}
	counts, err := s.counts(ctx, keys)
	if err != nil {
		return domain.Snapshot{}, err
	}

	snap := domain.Snapshot{}
	clients := map[string]bool{}
	byClient := map[string]int64{}
	byEndpoint := map[string]int64{}
	for i, k := range keys {
		clients[k.clientID] = true
		switch k.window {
		case domain.WindowMinute:
			snap.RequestsLastMinute += counts[i]
			byClient[k.clientID] += counts[i]
			byEndpoint[k.endpoint] += counts[i]
		case domain.WindowHour:
			snap.RequestsLastHour += counts[i]
		}
	}
	snap.TotalClients = len(clients)
	snap.TopClients = topCounts(byClient, topN)
	snap.TopEndpoints = topCounts(byEndpoint, topN)
	return snap, nil
}

// Sweep poda todas as janelas e apaga as vazias. Idempotente e seguro com tráfego ao vivo.
func (s *RedisWindowStore) Sweep(ctx context.Context) (int64, error) {
	keys, err := s.collect(ctx, s.keys.AllPattern())
	if err != nil {
		return 0, err
	}

	nowMs := s.now().UnixMilli()
	var removed int64
	for _, k := range keys {
		cutoff := strconv.FormatInt(nowMs-k.window.Size.Milliseconds(), 10)
		opCtx, cancel := s.opContext(ctx)
		n, err := sweepScript.Run(opCtx, s.rdb, []string{k.key}, cutoff).Int64()
		cancel()
		if err != nil {
			return removed, fmt.Errorf("%w: sweep %s: %w", domain.ErrLimiterUnavailable, k.key, err)
		}
		removed += n
	}
	return removed, nil
}

// StartJanitor roda Sweep a cada every até ctx ser cancelado. Falhas só são logadas.
func (s *RedisWindowStore) StartJanitor(ctx context.Context, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := s.Sweep(ctx)
				if err != nil {
					logger.WarnContext(ctx, "window sweep failed", "removed", n, "err", err)
					continue
				}
				if n > 0 {
					logger.DebugContext(ctx, "window sweep", "removed", n)
				}
			}
		}
	}()
}

func topCounts(m map[string]int64, n int) []domain.Count {
	out := make([]domain.Count, 0, len(m))
	for name, c := range m {
		if c > 0 {
			out = append(out, domain.Count{Name: name, Count: c})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
