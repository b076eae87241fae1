package models

import "time"

// Role is a user's role in the competition platform
type Role string

const (
	RoleDancer    Role = "DANCER"
	RoleJudge     Role = "JUDGE"
	RoleOrganizer Role = "ORGANIZER"
	RoleAdmin     Role = "ADMIN"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleDancer, RoleJudge, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// User represents a user in the system. Secret is the plaintext credential:
// it is persisted in the user directory but must be redacted from the current
// session snapshot and from every API response.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"` // unique, case-insensitive
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Secret    string    `json:"secret,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Redacted returns a copy of the user with the credential secret removed.
func (u User) Redacted() User {
	u.Secret = ""
	return u
}

// LoginRequest represents login request payload
type LoginRequest struct {
	Email  string `json:"email" validate:"required"`
	Secret string `json:"password" validate:"required"`
}

// RegisterRequest represents registration request payload
type RegisterRequest struct {
	Email  string `json:"email" validate:"required"`
	Secret string `json:"password" validate:"required,min=6"`
	Name   string `json:"name" validate:"required"`
	Role   Role   `json:"role" validate:"required"`
	// Optional profile extras, all named and typed.
	Phone      string `json:"phone,omitempty"`
	DanceStyle string `json:"dance_style,omitempty"`
}

// RefreshRequest represents a token refresh payload
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// AuthResponse represents authentication response
type AuthResponse struct {
	User         User   `json:"user"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expires_in"` // seconds
}
