// Package gatekeeper compõe sessão e rate limit numa decisão por pedido:
// identidade → tier → janelas → registro de atividade.
//
// Não conhece net/http; os adaptadores HTTP ficam em middleware/ratelimit e
// middleware/session.
package gatekeeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	sessiondomain "admission-gateway/middleware/session/domain"
)

// Sessions é o que o gatekeeper precisa do gerenciador de sessões.
type Sessions interface {
	Verify(ctx context.Context, token string) (sessiondomain.User, error)
	RecordActivity(ctx context.Context, userID, endpoint string) error
}

// Limiter é o rate limiter compartilhado.
type Limiter interface {
	Check(ctx context.Context, clientID, endpoint string, tier domain.Tier) (domain.Decision, error)
}

// Identity é quem está chamando.
type Identity struct {
	// ClientID é a chave de quota: "user:<id>" ou "ip:<addr>".
	ClientID string
	Tier     domain.Tier
	User     *sessiondomain.PublicUser // nil para anônimo
}

func (id Identity) Authenticated() bool { return id.User != nil }

// Request é o mínimo que o gatekeeper precisa de um pedido.
type Request struct {
	Bearer     string
	ClientAddr string
	Endpoint   string
}

// Verdict é o resultado do pipeline completo.
//
// Err != nil: o pedido não chegou a ser avaliado pelo limiter (token rejeitado
// ou store de sessão indisponível). Caso contrário vale Decision.
type Verdict struct {
	Identity Identity
	Decision domain.Decision
	Err      error
}

func (v Verdict) Allowed() bool { return v.Err == nil && v.Decision.Allowed }

type Gatekeeper struct {
	sessions Sessions
	limiter  Limiter
	fallback application.Fallback
	stats    domain.StatsStore
	logger   *slog.Logger
	now      func() time.Time

	rejectInvalidTokens bool
}

type Option func(*Gatekeeper)

func WithLogger(l *slog.Logger) Option {
	return func(g *Gatekeeper) { g.logger = l }
}

func WithStats(s domain.StatsStore) Option {
	return func(g *Gatekeeper) { g.stats = s }
}

// WithFallback define a FailurePolicy aplicada quando o limiter cai.
func WithFallback(f application.Fallback) Option {
	return func(g *Gatekeeper) { g.fallback = f }
}

// WithRejectInvalidTokens: token presente mas inválido vira erro em vez de
// rebaixar o chamador para anônimo.
func WithRejectInvalidTokens(reject bool) Option {
	return func(g *Gatekeeper) { g.rejectInvalidTokens = reject }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gatekeeper) { g.now = now }
}

func New(sessions Sessions, limiter Limiter, opts ...Option) *Gatekeeper {
	g := &Gatekeeper{
		sessions: sessions,
		limiter:  limiter,
		fallback: application.Fallback{Mode: domain.FailOpen},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ResolveIdentity classifica o chamador. Sem token: anônimo pela origem.
//
// Store de sessão indisponível sempre volta como erro. Erros de autenticação
// só voltam com WithRejectInvalidTokens; senão o chamador vira anônimo.
func (g *Gatekeeper) ResolveIdentity(ctx context.Context, bearer, clientAddr string) (Identity, error) {
	anon := Identity{ClientID: "ip:" + clientAddr, Tier: domain.TierAnonymous}
	if bearer == "" || g.sessions == nil {
		return anon, nil
	}

	u, err := g.sessions.Verify(ctx, bearer)
	if err != nil {
		switch sessiondomain.Classify(err) {
		case sessiondomain.ClassAuthentication:
			if g.rejectInvalidTokens {
				return anon, err
			}
			g.logger.DebugContext(ctx, "invalid bearer treated as anonymous", "err", err)
			return anon, nil
		default:
			return anon, fmt.Errorf("resolve identity: %w", err)
		}
	}

	tier := domain.TierAuthenticated
	if u.IsAdmin {
		tier = domain.TierAdmin
	}
	pub := u.Public()
	return Identity{ClientID: "user:" + u.ID, Tier: tier, User: &pub}, nil
}

// Admit consulta o limiter e aplica a FailurePolicy se ele estiver fora.
func (g *Gatekeeper) Admit(ctx context.Context, clientID, endpoint string, tier domain.Tier) (domain.Decision, error) {
	if g.limiter == nil {
		return domain.Decision{Allowed: true}, nil
	}

	dec, err := g.limiter.Check(ctx, clientID, endpoint, tier)
	if err == nil {
		return dec, nil
	}
	if !errors.Is(err, domain.ErrLimiterUnavailable) {
		return domain.Decision{}, err
	}

	dec = g.fallback.Decide(clientID, endpoint, tier)
	g.logger.WarnContext(ctx, "rate limiter unavailable, applying failure policy",
		"policy", g.fallback.Mode,
		"client", clientID,
		"endpoint", endpoint,
		"allowed", dec.Allowed,
		"err", err,
	)
	return dec, nil
}

// Evaluate roda o pipeline completo para um pedido.
func (g *Gatekeeper) Evaluate(ctx context.Context, req Request) Verdict {
	id, err := g.ResolveIdentity(ctx, req.Bearer, req.ClientAddr)
	if err != nil {
		return Verdict{Identity: id, Err: err}
	}

	dec, err := g.Admit(ctx, id.ClientID, req.Endpoint, id.Tier)
	if err != nil {
		return Verdict{Identity: id, Err: err}
	}

	g.record(ctx, id, req.Endpoint, dec)
	return Verdict{Identity: id, Decision: dec}
}

// record é best-effort: falha aqui nunca muda o veredito.
func (g *Gatekeeper) record(ctx context.Context, id Identity, endpoint string, dec domain.Decision) {
	if g.stats != nil {
		ev := domain.StatsEvent{
			Key:      domain.Key(id.ClientID),
			Tier:     id.Tier,
			Endpoint: endpoint,
			Allowed:  dec.Allowed,
			Degraded: dec.Degraded,
			At:       g.now(),
		}
		if !dec.Allowed {
			ev.Window = dec.Window.Name
		}
		if err := g.stats.Record(ctx, ev); err != nil {
			g.logger.DebugContext(ctx, "stats record failed", "err", err)
		}
	}

	if dec.Allowed && id.Authenticated() && g.sessions != nil {
		if err := g.sessions.RecordActivity(ctx, id.User.ID, endpoint); err != nil {
			g.logger.WarnContext(ctx, "activity record failed", "user_id", id.User.ID, "err", err)
		}
	}
}
