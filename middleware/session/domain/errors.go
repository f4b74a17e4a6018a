package domain

import "errors"

// Validação: rejeitados na hora, sem retry.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrWeakPassword  = errors.New("password must be at least 8 characters with upper, lower and digit")
	ErrUsernameTaken = errors.New("username already exists")
	ErrEmailTaken    = errors.New("email already exists")
)

// Autenticação: terminais para o pedido.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountDeactivated = errors.New("account is deactivated")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrTokenMalformed     = errors.New("invalid token")
	ErrUserNotFound       = errors.New("user not found")
)

// ErrStoreUnavailable: store compartilhado fora ou em timeout. Retentável.
var ErrStoreUnavailable = errors.New("session store unavailable")

type Class string

const (
	ClassNone           Class = ""
	ClassValidation     Class = "validation"
	ClassAuthentication Class = "authentication"
	ClassInfrastructure Class = "infrastructure"
	ClassInternal       Class = "internal"
)

// Classify posiciona err na taxonomia da camada de sessão.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrStoreUnavailable):
		return ClassInfrastructure
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrUsernameTaken),
		errors.Is(err, ErrEmailTaken):
		return ClassValidation
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountDeactivated),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenRevoked),
		errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrUserNotFound):
		return ClassAuthentication
	}
	return ClassInternal
}
