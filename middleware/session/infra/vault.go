package infra

import (
	"context"
	"errors"
	"fmt"

	"admission-gateway/middleware/session/domain"

	"golang.org/x/crypto/bcrypt"
)

// Gate limita quantos hashes rodam ao mesmo tempo. Sem vaga, Do devolve erro
// sem executar fn.
type Gate interface {
	Do(ctx context.Context, fn func() error) error
}

// BcryptVault implementa domain.PasswordVault.
type BcryptVault struct {
	cost int
	gate Gate
}

func NewBcryptVault(cost int, gate Gate) *BcryptVault {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptVault{cost: cost, gate: gate}
}

func (v *BcryptVault) Hash(ctx context.Context, password string) (string, error) {
	var digest []byte
	err := v.run(ctx, func() error {
		var err error
		digest, err = bcrypt.GenerateFromPassword([]byte(password), v.cost)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

func (v *BcryptVault) Verify(ctx context.Context, password, digest string) error {
	err := v.run(ctx, func() error {
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return domain.ErrInvalidCredentials
	case errors.Is(err, bcrypt.ErrHashTooShort), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return fmt.Errorf("%w: %w", domain.ErrInvalidCredentials, err)
	}
	return fmt.Errorf("verify password: %w", err)
}

func (v *BcryptVault) run(ctx context.Context, fn func() error) error {
	if v.gate == nil {
		return fn()
	}
	return v.gate.Do(ctx, fn)
}
