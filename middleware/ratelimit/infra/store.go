package infra

import (
	"context"
	"strconv"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// LocalStore é o fallback em processo para FailurePolicy=local: um token bucket
// (x/time/rate) por chave, com taxa perMinute/60 e burst perMinute.
//
// Não é compartilhado entre instâncias; só vale enquanto o Redis está fora.
type LocalStore struct {
	mu           sync.Mutex
	entries      map[string]*localEntry
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type localEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type LocalStoreOption func(*LocalStore)

func WithIdleTTL(d time.Duration) LocalStoreOption {
	return func(s *LocalStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) LocalStoreOption {
	return func(s *LocalStore) { s.cleanupEvery = d }
}

func WithLocalClock(now func() time.Time) LocalStoreOption {
	return func(s *LocalStore) { s.now = now }
}

func NewLocalStore(opts ...LocalStoreOption) *LocalStore {
	s := &LocalStore{
		entries:      make(map[string]*localEntry),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LocalStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// Get implementa domain.LimiterStore. perMinute <= 0 devolve um limiter que sempre nega.
func (s *LocalStore) Get(key domain.Key, perMinute int) domain.Limiter {
	return s.limiter(string(key)+"|"+strconv.Itoa(perMinute), perMinute)
}

func (s *LocalStore) limiter(id string, perMinute int) *rate.Limiter {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[id]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	var lim *rate.Limiter
	if perMinute <= 0 {
		lim = rate.NewLimiter(0, 0)
	} else {
		lim = rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute)
	}
	s.entries[id] = &localEntry{lim: lim, lastSeen: now}
	return lim
}

func (s *LocalStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove limiters sem uso há mais de idleTTL.
func (s *LocalStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor limpa chaves inativas periodicamente até ctx ser cancelado.
func (s *LocalStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
