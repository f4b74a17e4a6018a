// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
//   - RedisWindowStore: log de janela deslizante em sorted sets, avaliado por script Lua,
//     com relatórios administrativos (Usage, Reset, Snapshot) e Sweep periódico
//   - LocalStore: token bucket por chave (golang.org/x/time/rate), fallback quando o Redis cai
//   - ChanPool: semáforo simples para limite de concorrência
//   - RedisStatsStore / MemoryStatsStore: contadores de allow/deny
//   - LoadPolicyFile: tabela de quotas em YAML
package infra
