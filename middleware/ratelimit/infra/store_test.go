package infra

import (
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

func TestLocalStore_SameKeyAndRateReturnsSameLimiter(t *testing.T) {
	s := NewLocalStore()

	l1 := s.Get(domain.Key("k"), 60)
	l2 := s.Get(domain.Key("k"), 60)
	if l1 != l2 {
		t.Fatalf("expected same limiter pointer for same key and rate")
	}

	if l3 := s.Get(domain.Key("k"), 5); l3 == l1 {
		t.Fatalf("expected a separate limiter for a different rate")
	}
}

func TestLocalStore_BurstIsPerMinuteQuota(t *testing.T) {
	s := NewLocalStore()

	lim := s.Get(domain.Key("k"), 3)
	for i := 0; i < 3; i++ {
		if !lim.Allow() {
			t.Fatalf("expected allow #%d within burst", i+1)
		}
	}
	if lim.Allow() {
		t.Fatalf("expected 4th immediate Allow to be false (burst=3)")
	}
}

func TestLocalStore_ZeroQuotaAlwaysDenies(t *testing.T) {
	s := NewLocalStore()
	if s.Get(domain.Key("k"), 0).Allow() {
		t.Fatalf("expected zero quota to deny")
	}
}

func TestLocalStore_CleanupRemovesIdleEntries(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewLocalStore(
		WithIdleTTL(time.Minute),
		WithCleanupEvery(0),
		WithLocalClock(func() time.Time { return now }),
	)

	before := s.Get(domain.Key("k"), 10)
	now = now.Add(2 * time.Minute)

	s.Cleanup()
	if s.Len() != 0 {
		t.Fatalf("expected idle entry to be removed, got %d entries", s.Len())
	}

	after := s.Get(domain.Key("k"), 10)
	if before == after {
		t.Fatalf("expected limiter to be recreated after cleanup")
	}
}
