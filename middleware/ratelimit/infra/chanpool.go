package infra

import (
	"context"
	"sync"
)

// ChanPool é um semáforo em channel. Atende o limite de pedidos em voo e o
// gate de hashing de senha.
type ChanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool com max vagas (mínimo 1).
func NewChanPool(max int) *ChanPool {
	if max < 1 {
		max = 1
	}
	return &ChanPool{sem: make(chan struct{}, max)}
}

// Acquire implementa domain.SlotPool. ctx já encerrado nunca ocupa vaga.
// O release devolvido pode ser chamado mais de uma vez; só a primeira conta.
func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	select {
	case p.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-p.sem }) }, true
	case <-ctx.Done():
		return nil, false
	}
}

func (p *ChanPool) InUse() int { return len(p.sem) }

func (p *ChanPool) Cap() int { return cap(p.sem) }
