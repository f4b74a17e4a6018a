package gatekeeper

import (
	"context"
	"strings"
)

type identityKey struct{}

// WithIdentity anexa a identidade resolvida ao contexto do pedido.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// BearerToken extrai o token de um header Authorization ("Bearer <token>").
// Esquema case-insensitive; qualquer outro formato devolve "".
func BearerToken(authorization string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authorization), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
