package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrLimiterUnavailable indica que o store compartilhado não respondeu (erro ou timeout).
// Nunca é convertido em allow/deny aqui: quem chama aplica a FailurePolicy.
var ErrLimiterUnavailable = errors.New("rate limiter unavailable")

type Key string

// Tier é a classificação de confiança de quem chama.
type Tier string

const (
	TierAnonymous     Tier = "anonymous"
	TierAuthenticated Tier = "authenticated"
	TierAdmin         Tier = "admin"
)

// Tiers lista os tiers em ordem crescente de quota.
var Tiers = []Tier{TierAnonymous, TierAuthenticated, TierAdmin}

func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierAnonymous, TierAuthenticated, TierAdmin:
		return t, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

// Window é uma janela deslizante nomeada.
type Window struct {
	Name string
	Size time.Duration
}

var (
	WindowMinute = Window{Name: "minute", Size: time.Minute}
	WindowHour   = Window{Name: "hour", Size: time.Hour}
	WindowDay    = Window{Name: "day", Size: 24 * time.Hour}
)

// Windows em ordem da mais curta para a mais longa (ordem de avaliação).
var Windows = []Window{WindowMinute, WindowHour, WindowDay}

// WindowByName resolve o nome usado nas chaves do store.
func WindowByName(name string) (Window, bool) {
	for _, w := range Windows {
		if w.Name == name {
			return w, true
		}
	}
	return Window{}, false
}

// WindowLimit é uma janela com o limite efetivo para um pedido.
type WindowLimit struct {
	Window Window
	Limit  int
}

// Decision é o veredito do limiter para um pedido.
//
// Allowed=true: Window/Limit/Remaining/ResetAt referem-se à janela mais curta aplicada.
// Allowed=false: Window é a janela que negou e ResetAt é quando o pedido mais antigo
// contado sai da janela (primeiro retry possível).
type Decision struct {
	Allowed   bool
	Window    Window
	Limit     int
	Remaining int
	ResetAt   time.Time

	// Degraded indica que a decisão veio da FailurePolicy, não do store compartilhado.
	Degraded bool
}

// RetryAfter devolve quanto falta até ResetAt, nunca negativo.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.IsZero() || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// WindowStore avalia atomicamente um conjunto de janelas para um par cliente/endpoint.
//
// Tudo ou nada: o pedido só é registrado se todas as janelas passarem.
// Erros de infraestrutura devem embrulhar ErrLimiterUnavailable.
type WindowStore interface {
	Evaluate(ctx context.Context, clientID, endpoint string, limits []WindowLimit) (Decision, error)
}

// SlotPool é capacidade finita (pedidos em voo, hashing de senha).
// Acquire bloqueia até obter vaga ou ctx encerrar; release devolve a vaga.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// Usado só pelo fallback local (FailurePolicy=local), via golang.org/x/time/rate.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter local por chave, dimensionado para perMinute pedidos/minuto.
type LimiterStore interface {
	Get(key Key, perMinute int) Limiter
}

// FailurePolicy define o que fazer quando o store compartilhado está indisponível.
type FailurePolicy string

const (
	FailOpen   FailurePolicy = "open"
	FailClosed FailurePolicy = "closed"
	FailLocal  FailurePolicy = "local"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FailOpen, FailClosed, FailLocal:
		return p, nil
	case "":
		return FailOpen, nil
	}
	return "", fmt.Errorf("unknown failure policy %q", s)
}
