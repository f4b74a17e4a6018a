package domain

import (
	"context"
	"time"
)

// StatsEvent representa um veredito de admissão já decidido.
//
// Endpoint é o identificador de rota normalizado, não o path cru.
// Observação: cuidado com cardinalidade ao guardar Key (um cliente anônimo por IP).
type StatsEvent struct {
	Key      Key
	Tier     Tier
	Endpoint string
	Allowed  bool

	// Window é a janela que negou (vazio quando permitido).
	Window   string
	Degraded bool

	At time.Time
}

// StatsStore persiste contadores agregados de allow/deny.
//
// Telemetria best-effort: erro aqui nunca muda o veredito.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
