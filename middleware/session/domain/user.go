package domain

import "time"

// User é o registro completo. PasswordHash nunca sai do pacote de sessão:
// tudo que vai para fora usa PublicUser.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	DisplayName  string
	IsAdmin      bool
	IsActive     bool
	CreatedAt    time.Time
	LastLogin    time.Time // zero = nunca logou
}

// PublicUser é a visão sem credencial.
type PublicUser struct {
	ID          string     `json:"user_id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	DisplayName string     `json:"full_name,omitempty"`
	IsAdmin     bool       `json:"is_admin"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
}

func (u User) Public() PublicUser {
	p := PublicUser{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		IsAdmin:     u.IsAdmin,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
	}
	if !u.LastLogin.IsZero() {
		ll := u.LastLogin
		p.LastLogin = &ll
	}
	return p
}

// RegisterInput é o pedido de cadastro, validado com go-playground/validator.
type RegisterInput struct {
	Username    string `json:"username" validate:"required,min=3,max=50,username"`
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,max=72"`
	DisplayName string `json:"full_name" validate:"max=100"`
}

// TokenTypeAccess é o único discriminador de token emitido hoje.
const TokenTypeAccess = "access"

// Claims é o conteúdo verificado de um bearer token.
type Claims struct {
	TokenID   string
	UserID    string
	Username  string
	IsAdmin   bool
	Type      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Token é um bearer token emitido.
type Token struct {
	Value     string    `json:"access_token"`
	Type      string    `json:"token_type"`
	ExpiresIn int64     `json:"expires_in"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Activity é o relatório de uso de um usuário.
type Activity struct {
	UserID            string     `json:"user_id"`
	Username          string     `json:"username"`
	MemberSince       time.Time  `json:"member_since"`
	LastLogin         *time.Time `json:"last_login,omitempty"`
	TotalRequests     int64      `json:"total_requests"`
	RequestsToday     int64      `json:"requests_today"`
	FavoriteEndpoints []string   `json:"favorite_endpoints"`
}

// ActivityCounters é o que o store de atividade devolve.
type ActivityCounters struct {
	Total     int64
	Today     int64
	Endpoints []string // mais usado primeiro
}
