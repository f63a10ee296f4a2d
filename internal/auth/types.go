package auth

import "time"

// Principal is an authenticated account.
type Principal struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	SecretHash  string    `json:"-"`
	Admin       bool      `json:"admin"`
	HolderID    string    `json:"holder_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PrincipalView is the read-only projection handed to callers.
type PrincipalView struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	Admin       bool      `json:"admin"`
	HolderID    string    `json:"holder_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// View projects p without credential material.
func (p *Principal) View() PrincipalView {
	return PrincipalView{
		ID:          p.ID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Admin:       p.Admin,
		HolderID:    p.HolderID,
		CreatedAt:   p.CreatedAt,
	}
}

// RefreshSession records one issued refresh token. Only the hash of the raw
// token is kept. Rows are revoked, never deleted.
type RefreshSession struct {
	ID          string
	PrincipalID string
	TokenHash   string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time
}

// Live reports whether the session can still be matched at now.
func (s *RefreshSession) Live(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// TokenPair is the credential pair emitted by register, login and refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Result bundles the principal with a freshly issued pair.
type Result struct {
	Principal PrincipalView
	Tokens    TokenPair
}

// RegisterInput carries registration fields.
type RegisterInput struct {
	Email       string
	Secret      string
	DisplayName string
}
