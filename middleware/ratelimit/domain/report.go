package domain

import "context"

// Usage é a contagem por endpoint e por janela de um cliente.
// Leitura aproximada sob concorrência.
type Usage map[string]map[string]int64

// Count é uma linha de ranking.
type Count struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Snapshot agrega todos os clientes conhecidos para visibilidade operacional.
type Snapshot struct {
	TotalClients       int     `json:"total_clients"`
	RequestsLastMinute int64   `json:"requests_last_minute"`
	RequestsLastHour   int64   `json:"requests_last_hour"`
	TopClients         []Count `json:"top_clients"`
	TopEndpoints       []Count `json:"top_endpoints"`
}

// Reporter agrupa as operações administrativas (fora do hot path de admissão).
type Reporter interface {
	Usage(ctx context.Context, clientID string) (Usage, error)
	Reset(ctx context.Context, clientID, endpoint string) (int64, error)
	Snapshot(ctx context.Context, topN int) (Snapshot, error)
	Sweep(ctx context.Context) (int64, error)
}
