// Package application contém os casos de uso (regras de aplicação) para rate limit
// e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Check(ctx, client, endpoint, tier) retorna uma Decision;
// Fallback.Decide aplica a FailurePolicy quando o store cai.
package application
