package models

import (
	"time"

	"github.com/gofrs/uuid"
)

const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"

	TokenTypeBearer = "Bearer"
)

type AuthProvider string

const (
	ProviderLocal  AuthProvider = "LOCAL"
	ProviderGoogle AuthProvider = "GOOGLE"
)

type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string // bcrypt hash, empty for provider accounts
	ImageURL     string
	Provider     AuthProvider
	ProviderID   string
	Roles        []string
	Enabled      bool
	CreatedAt    time.Time
}

// HasRole reports whether the user currently holds role.
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Role struct {
	ID   int64
	Name string
}

type RefreshToken struct {
	ID         string    `json:"id"`
	Token      string    `json:"token"`
	UserID     uuid.UUID `json:"user_id"`
	UserEmail  string    `json:"user_email"`
	ExpiryDate time.Time `json:"expiry_date"`
	TimeToLive int64     `json:"time_to_live"` // seconds
}

// Caller is the identity extracted from a verified access token.
type Caller struct {
	Email     string
	Roles     []string
	ExpiresAt time.Time
}

// ExternalIdentity is the attribute set returned by a trusted identity provider.
type ExternalIdentity struct {
	Provider AuthProvider
	Subject  string
	Email    string
	Name     string
	Picture  string
}

type UserDTO struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	ImageURL string    `json:"imageUrl,omitempty"`
	Roles    []string  `json:"roles"`
}

type AuthResponse struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	TokenType    string  `json:"tokenType"`
	ExpiresIn    int64   `json:"expiresIn"`
	User         UserDTO `json:"user"`
}

func NewUserDTO(u User) UserDTO {
	roles := make([]string, len(u.Roles))
	copy(roles, u.Roles)

	return UserDTO{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		ImageURL: u.ImageURL,
		Roles:    roles,
	}
}
