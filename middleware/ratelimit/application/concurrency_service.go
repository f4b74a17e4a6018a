package application

import (
	"context"
	"errors"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// ErrNoSlot indica que nenhuma vaga foi obtida dentro do prazo.
var ErrNoSlot = errors.New("no slot available")

// ConcurrencyService controla a aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP. Serve tanto ao limite de pedidos em voo quanto
// ao hashing de senha.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
// - Se `AcquireTimeout <= 0`, espera indefinidamente (até ctx cancelar).
// - Se `AcquireTimeout > 0`, espera até o timeout.
// Retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	if s.AcquireTimeout <= 0 {
		return s.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}

// Do executa fn segurando uma vaga. Sem vaga, devolve ErrNoSlot junto do erro do ctx.
func (s ConcurrencyService) Do(ctx context.Context, fn func() error) error {
	release, ok := s.Acquire(ctx)
	if !ok {
		if err := ctx.Err(); err != nil {
			return errors.Join(ErrNoSlot, err)
		}
		return ErrNoSlot
	}
	defer release()
	return fn()
}
