package service

import (
	"errors"
	"log/slog"

	"oauth2jwt/internal/auth"
	"oauth2jwt/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailInUse         = errors.New("email is already in use")
	ErrInvalidToken       = errors.New("invalid refresh token")
	ErrTokenNotFound      = errors.New("refresh token not found")
	ErrTokenExpired       = errors.New("refresh token was expired, please make a new sign in request")
	ErrNotFound           = errors.New("resource not found")
	ErrForbidden          = errors.New("insufficient role")
	ErrUnauthorized       = errors.New("authentication required")
	ErrProviderMismatch   = errors.New("account is registered with a different provider")
	ErrMissingEmail       = errors.New("email not found from identity provider")
	ErrConfiguration      = errors.New("reference roles are not bootstrapped")
)

type Option func(*Service)

// WithBcryptCost sets the password hashing cost for new accounts.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// Service implements the authentication flow and the authorization layer on
// top of the credential store, the access token provider and refresh tokens.
type Service struct {
	storage    storage.Storage
	tokens     *auth.TokenProvider
	refresh    *RefreshTokens
	log        *slog.Logger
	bcryptCost int
}

func NewService(st storage.Storage, tokens *auth.TokenProvider, refresh *RefreshTokens, lgr *slog.Logger, opts ...Option) *Service {
	s := &Service{
		storage:    st,
		tokens:     tokens,
		refresh:    refresh,
		log:        lgr,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}
