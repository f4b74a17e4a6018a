package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit: resolve as janelas pela
// PolicyTable e delega a avaliação atômica ao WindowStore.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Policy *domain.PolicyTable
	Store  domain.WindowStore
}

// Check avalia um pedido. Quota estourada é uma Decision, não um erro;
// falha do store volta como erro embrulhando domain.ErrLimiterUnavailable.
func (s Service) Check(ctx context.Context, clientID, endpoint string, tier domain.Tier) (domain.Decision, error) {
	if s.Store == nil || s.Policy == nil {
		return domain.Decision{Allowed: true}, nil
	}

	limits := s.Policy.LimitsFor(tier, endpoint)
	if len(limits) == 0 {
		return domain.Decision{Allowed: true}, nil
	}

	dec, err := s.Store.Evaluate(ctx, clientID, endpoint, limits)
	if err != nil {
		if !errors.Is(err, domain.ErrLimiterUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrLimiterUnavailable, err)
		}
		return domain.Decision{}, err
	}
	return dec, nil
}

// Fallback decide quando o store compartilhado está indisponível.
type Fallback struct {
	Mode   domain.FailurePolicy
	Local  domain.LimiterStore
	Policy *domain.PolicyTable
	Now    func() time.Time
}

// Decide aplica o modo configurado. Toda decisão sai com Degraded=true.
//
//   - open: permite
//   - closed: nega sem janela (o adaptador responde 503, não 429)
//   - local: token bucket em processo dimensionado pela janela mais curta do tier
func (f Fallback) Decide(clientID, endpoint string, tier domain.Tier) domain.Decision {
	now := time.Now()
	if f.Now != nil {
		now = f.Now()
	}

	switch f.Mode {
	case domain.FailClosed:
		return domain.Decision{Allowed: false, Degraded: true}
	case domain.FailLocal:
		if f.Local == nil || f.Policy == nil {
			break
		}
		limits := f.Policy.LimitsFor(tier, endpoint)
		if len(limits) == 0 {
			return domain.Decision{Allowed: true, Degraded: true}
		}
		wl := limits[0]
		perMinute := perMinuteOf(wl)
		key := domain.Key(clientID + "|" + endpoint)
		if f.Local.Get(key, perMinute).Allow() {
			return domain.Decision{Allowed: true, Window: wl.Window, Limit: wl.Limit, Degraded: true}
		}
		return domain.Decision{
			Allowed:  false,
			Window:   wl.Window,
			Limit:    wl.Limit,
			ResetAt:  now.Add(time.Minute / time.Duration(perMinute)),
			Degraded: true,
		}
	}
	return domain.Decision{Allowed: true, Degraded: true}
}

// perMinuteOf converte o limite de uma janela para pedidos/minuto, mínimo 1.
func perMinuteOf(wl domain.WindowLimit) int {
	n := int(int64(wl.Limit) * int64(time.Minute) / int64(wl.Window.Size))
	if n < 1 {
		return 1
	}
	return n
}
