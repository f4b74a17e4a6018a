// Package ratelimit fornece adapters HTTP (net/http) para admissão por quota,
// limite de concorrência e administração do rate limit.
//
// Visão geral (camadas):
//
//   - domain: tiers, janelas, PolicyTable e contratos (sem dependência de net/http)
//   - application: casos de uso (Check, Fallback, acquire/timeout) sem net/http
//   - infra: log de janela deslizante no Redis, fallback local, semáforo, stats
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai o bearer token e a chave do cliente (IP/header/XFF)
//  2. Chama o gatekeeper para obter identidade + decisão
//  3. Se bloqueado, responde 429 (quota), 401 (token rejeitado) ou 503 (store fora / concorrência)
//  4. Se permitido, chama o próximo handler (ex: reverse proxy) com a identidade no contexto
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como POLICY_FILE, FAILURE_POLICY, CONCURRENCY_MAX e CONCURRENCY_TIMEOUT.
package ratelimit
