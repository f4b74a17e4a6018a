// Package domain define o modelo de usuários, tokens e atividade, os erros
// sentinela da camada de sessão e os contratos de persistência.
//
// Não depende de Redis nem de net/http.
package domain
