package domain

import (
	"context"
	"time"
)

// UserStore persiste usuários e os índices de unicidade.
//
// Create reivindica username e depois email; se o email já existe, a
// reivindicação do username é desfeita. Devolve ErrUsernameTaken/ErrEmailTaken.
type UserStore interface {
	Create(ctx context.Context, u User) error
	Get(ctx context.Context, id string) (User, error)
	IDByUsername(ctx context.Context, username string) (string, error)
	SetLastLogin(ctx context.Context, id string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
	SetAdmin(ctx context.Context, id string, admin bool) error
}

// Blacklist guarda tokens revogados até a própria expiração.
type Blacklist interface {
	Add(ctx context.Context, token string, ttl time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
}

// ActivityStore mantém os contadores de uso por usuário (consultivos).
type ActivityStore interface {
	Record(ctx context.Context, userID, endpoint string, at time.Time) error
	Read(ctx context.Context, userID string, at time.Time) (ActivityCounters, error)
}

// TokenIssuer assina e verifica bearer tokens localmente (sem I/O).
type TokenIssuer interface {
	Issue(u User) (Token, error)
	// Parse valida assinatura e expiração: ErrTokenExpired ou ErrTokenMalformed.
	Parse(token string) (Claims, error)
	// ParseIgnoringExpiry lê os claims com assinatura válida mesmo que expirados.
	ParseIgnoringExpiry(token string) (Claims, error)
}

// PasswordVault faz hash/verificação de senha com concorrência limitada.
type PasswordVault interface {
	Hash(ctx context.Context, password string) (string, error)
	// Verify devolve ErrInvalidCredentials quando não confere.
	Verify(ctx context.Context, password, digest string) error
}
