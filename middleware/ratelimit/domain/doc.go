// Package domain define contratos e tipos de domínio para o rate limit por tiers.
//
// Tiers, janelas deslizantes, a tabela de políticas e o formato da Decision
// ficam aqui, sem dependência de net/http nem de Redis. A camada infra
// implementa WindowStore sobre Redis e o fallback local sobre x/time/rate.
package domain
