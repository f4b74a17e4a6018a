package infra

import (
	"errors"
	"fmt"
	"time"

	"admission-gateway/middleware/session/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// accessClaims é o payload do bearer token.
type accessClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// JWTIssuer assina tokens HS256. Cada token carrega um jti único, então dois
// tokens emitidos no mesmo segundo para o mesmo usuário nunca coincidem.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

type JWTOption func(*JWTIssuer)

func WithTokenTTL(d time.Duration) JWTOption {
	return func(i *JWTIssuer) { i.ttl = d }
}

func WithIssuer(name string) JWTOption {
	return func(i *JWTIssuer) { i.issuer = name }
}

func WithTokenClock(now func() time.Time) JWTOption {
	return func(i *JWTIssuer) { i.now = now }
}

func NewJWTIssuer(secret []byte, opts ...JWTOption) (*JWTIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	i := &JWTIssuer{
		secret: secret,
		ttl:    24 * time.Hour,
		issuer: "admission-gateway",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.ttl <= 0 {
		return nil, fmt.Errorf("jwt ttl must be positive, got %s", i.ttl)
	}
	return i, nil
}

func (i *JWTIssuer) TTL() time.Duration { return i.ttl }

func (i *JWTIssuer) Issue(u domain.User) (domain.Token, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)

	claims := accessClaims{
		UserID:   u.ID,
		Username: u.Username,
		IsAdmin:  u.IsAdmin,
		Type:     domain.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return domain.Token{}, fmt.Errorf("sign token: %w", err)
	}
	return domain.Token{
		Value:     signed,
		Type:      "bearer",
		ExpiresIn: int64(i.ttl.Seconds()),
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (i *JWTIssuer) Parse(token string) (domain.Claims, error) {
	return i.parse(token, jwt.WithExpirationRequired())
}

func (i *JWTIssuer) ParseIgnoringExpiry(token string) (domain.Claims, error) {
	return i.parse(token, jwt.WithoutClaimsValidation())
}

func (i *JWTIssuer) parse(token string, opts ...jwt.ParserOption) (domain.Claims, error) {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)

	var c accessClaims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.Claims{}, domain.ErrTokenExpired
	case err != nil:
		return domain.Claims{}, fmt.Errorf("%w: %w", domain.ErrTokenMalformed, err)
	}

	if c.Type != domain.TokenTypeAccess || c.UserID == "" || c.ExpiresAt == nil {
		return domain.Claims{}, domain.ErrTokenMalformed
	}

	out := domain.Claims{
		TokenID:   c.ID,
		UserID:    c.UserID,
		Username:  c.Username,
		IsAdmin:   c.IsAdmin,
		Type:      c.Type,
		ExpiresAt: c.ExpiresAt.Time,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	return out, nil
}
