package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"admission-gateway/middleware/session/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Deps reúne os colaboradores do Manager.
type Deps struct {
	Users     domain.UserStore
	Blacklist domain.Blacklist
	Activity  domain.ActivityStore
	Tokens    domain.TokenIssuer
	Vault     domain.PasswordVault
}

// Manager é o gerenciador de sessões. Seguro para uso concorrente; o único estado
// mutável é o hash dummy de login, calculado na primeira vez que é preciso.
type Manager struct {
	users     domain.UserStore
	blacklist domain.Blacklist
	activity  domain.ActivityStore
	tokens    domain.TokenIssuer
	vault     domain.PasswordVault

	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time

	dummyMu   sync.Mutex
	dummyHash string
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(d Deps, opts ...Option) *Manager {
	m := &Manager{
		users:     d.Users,
		blacklist: d.Blacklist,
		activity:  d.Activity,
		tokens:    d.Tokens,
		vault:     d.Vault,
		validate:  newValidator(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register cria a conta. Username e email são normalizados para minúsculas.
func (m *Manager) Register(ctx context.Context, in domain.RegisterInput) (domain.User, error) {
	in = normalize(in)
	if err := m.validateInput(in); err != nil {
		return domain.User{}, err
	}

	digest, err := m.vault.Hash(ctx, in.Password)
	if err != nil {
		return domain.User{}, err
	}

	u := domain.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: digest,
		DisplayName:  in.DisplayName,
		IsActive:     true,
		CreatedAt:    m.now().UTC(),
	}
	if err := m.users.Create(ctx, u); err != nil {
		return domain.User{}, err
	}

	m.logger.InfoContext(ctx, "user registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Login devolve ErrInvalidCredentials tanto para usuário inexistente quanto
// para senha errada; o usuário inexistente ainda paga um bcrypt.
func (m *Manager) Login(ctx context.Context, username, password string) (domain.User, domain.Token, error) {
	id, err := m.users.IDByUsername(ctx, normalize(domain.RegisterInput{Username: username}).Username)
	if errors.Is(err, domain.ErrUserNotFound) {
		m.burnCompare(ctx, password)
		return domain.User{}, domain.Token{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, domain.Token{}, err
	}

	u, err := m.users.Get(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		m.burnCompare(ctx, password)
		return domain.User{}, domain.Token{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, domain.Token{}, err
	}

	if err := m.vault.Verify(ctx, password, u.PasswordHash); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return domain.User{}, domain.Token{}, domain.ErrInvalidCredentials
		}
		return domain.User{}, domain.Token{}, err
	}
	if !u.IsActive {
		return domain.User{}, domain.Token{}, domain.ErrAccountDeactivated
	}

	now := m.now().UTC()
	if err := m.users.SetLastLogin(ctx, u.ID, now); err != nil {
		return domain.User{}, domain.Token{}, err
	}
	u.LastLogin = now

	tok, err := m.tokens.Issue(u)
	if err != nil {
		return domain.User{}, domain.Token{}, err
	}
	m.logger.InfoContext(ctx, "user logged in", "user_id", u.ID)
	return u, tok, nil
}

// Issue emite um token para um usuário já autenticado (ex.: logo após o cadastro).
func (m *Manager) Issue(u domain.User) (domain.Token, error) {
	return m.tokens.Issue(u)
}

// Verify: assinatura/expiração (local) → blacklist → registro vivo → flag ativo.
func (m *Manager) Verify(ctx context.Context, token string) (domain.User, error) {
	claims, err := m.tokens.Parse(token)
	if err != nil {
		return domain.User{}, err
	}

	revoked, err := m.blacklist.Contains(ctx, token)
	if err != nil {
		return domain.User{}, err
	}
	if revoked {
		return domain.User{}, domain.ErrTokenRevoked
	}

	u, err := m.users.Get(ctx, claims.UserID)
	if err != nil {
		return domain.User{}, err
	}
	if !u.IsActive {
		return domain.User{}, domain.ErrAccountDeactivated
	}
	return u, nil
}

// Logout revoga o token pelo tempo que ainda resta. Idempotente; token já
// expirado é sucesso sem efeito.
func (m *Manager) Logout(ctx context.Context, token string) error {
	claims, err := m.tokens.ParseIgnoringExpiry(token)
	if err != nil {
		return err
	}
	remaining := claims.ExpiresAt.Sub(m.now())
	if remaining <= 0 {
		return nil
	}
	if err := m.blacklist.Add(ctx, token, remaining); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "token revoked", "user_id", claims.UserID, "jti", claims.TokenID)
	return nil
}

// Refresh revoga o token atual antes de devolver o novo; se a revogação
// falhar, nenhum token novo é emitido.
func (m *Manager) Refresh(ctx context.Context, token string) (domain.Token, error) {
	u, err := m.Verify(ctx, token)
	if err != nil {
		return domain.Token{}, err
	}
	claims, err := m.tokens.Parse(token)
	if err != nil {
		return domain.Token{}, err
	}

	if err := m.blacklist.Add(ctx, token, claims.ExpiresAt.Sub(m.now())); err != nil {
		return domain.Token{}, err
	}
	return m.tokens.Issue(u)
}

// RecordActivity atualiza os contadores de uso. Consultivo.
func (m *Manager) RecordActivity(ctx context.Context, userID, endpoint string) error {
	return m.activity.Record(ctx, userID, endpoint, m.now())
}

func (m *Manager) Activity(ctx context.Context, userID string) (domain.Activity, error) {
	u, err := m.users.Get(ctx, userID)
	if err != nil {
		return domain.Activity{}, err
	}
	c, err := m.activity.Read(ctx, userID, m.now())
	if err != nil {
		return domain.Activity{}, err
	}
	return domain.Activity{
		UserID:            u.ID,
		Username:          u.Username,
		MemberSince:       u.CreatedAt,
		LastLogin:         u.Public().LastLogin,
		TotalRequests:     c.Total,
		RequestsToday:     c.Today,
		FavoriteEndpoints: c.Endpoints,
	}, nil
}

func (m *Manager) User(ctx context.Context, userID string) (domain.User, error) {
	return m.users.Get(ctx, userID)
}

// SetActive desativa/reativa a conta. Tokens emitidos continuam assinados,
// mas Verify passa a recusá-los com ErrAccountDeactivated.
func (m *Manager) SetActive(ctx context.Context, userID string, active bool) error {
	if err := m.users.SetActive(ctx, userID, active); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "user active flag changed", "user_id", userID, "active", active)
	return nil
}

func (m *Manager) SetAdmin(ctx context.Context, userID string, admin bool) error {
	if err := m.users.SetAdmin(ctx, userID, admin); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "user admin flag changed", "user_id", userID, "admin", admin)
	return nil
}

// EnsureAdmin garante que o usuário de bootstrap exista e seja admin.
// Se o username já existe, só promove (a senha não muda).
func (m *Manager) EnsureAdmin(ctx context.Context, in domain.RegisterInput) (domain.User, error) {
	if in.DisplayName == "" {
		in.DisplayName = "System Administrator"
	}

	u, err := m.Register(ctx, in)
	if errors.Is(err, domain.ErrUsernameTaken) {
		id, lerr := m.users.IDByUsername(ctx, normalize(in).Username)
		if lerr != nil {
			return domain.User{}, lerr
		}
		if u, err = m.users.Get(ctx, id); err != nil {
			return domain.User{}, err
		}
	} else if err != nil {
		return domain.User{}, fmt.Errorf("bootstrap admin: %w", err)
	}

	if !u.IsAdmin {
		if err := m.SetAdmin(ctx, u.ID, true); err != nil {
			return domain.User{}, err
		}
		u.IsAdmin = true
	}
	return u, nil
}

// burnCompare gasta o mesmo custo de um login real.
func (m *Manager) burnCompare(ctx context.Context, password string) {
	if digest := m.dummyDigest(ctx); digest != "" {
		_ = m.vault.Verify(ctx, password, digest)
	}
}

func (m *Manager) dummyDigest(ctx context.Context) string {
	m.dummyMu.Lock()
	defer m.dummyMu.Unlock()

	if m.dummyHash == "" {
		digest, err := m.vault.Hash(ctx, uuid.NewString())
		if err != nil {
			m.logger.WarnContext(ctx, "dummy hash unavailable", "err", err)
			return ""
		}
		m.dummyHash = digest
	}
	return m.dummyHash
}
