package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSecretLength = 32

// ErrInvalidToken is returned for any access token that fails verification.
var ErrInvalidToken = errors.New("auth: invalid token")

type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Email returns the subject, which is the user's email.
func (c *Claims) Email() string {
	return c.Subject
}

type Option func(*TokenProvider)

// WithClock overrides the time source used for issuance and verification.
func WithClock(now func() time.Time) Option {
	return func(p *TokenProvider) {
		p.now = now
	}
}

func WithIssuer(issuer string) Option {
	return func(p *TokenProvider) {
		p.issuer = strings.TrimSpace(issuer)
	}
}

// TokenProvider issues and verifies stateless HS256 access tokens. It never
// touches storage.
type TokenProvider struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewTokenProvider(secret string, ttl time.Duration, opts ...Option) (*TokenProvider, error) {
	const op = "auth.NewTokenProvider"

	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("%s: secret must be at least %d bytes", op, minSecretLength)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%s: ttl must be positive", op)
	}

	p := &TokenProvider{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// ExpiresIn is the access token lifetime in milliseconds.
func (p *TokenProvider) ExpiresIn() int64 {
	return p.ttl.Milliseconds()
}

// Issue signs a token for email carrying the given role set. Every token gets
// its own jti, so two tokens minted in the same second still differ.
func (p *TokenProvider) Issue(email string, roles []string) (string, error) {
	const op = "auth.Issue"

	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%s: email is required", op)
	}

	now := p.now()
	claims := &Claims{
		Roles: dedupeRoles(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   email,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// IssueFromEmail signs a subject-only token without roles.
func (p *TokenProvider) IssueFromEmail(email string) (string, error) {
	return p.Issue(email, nil)
}

// Verify checks signature, algorithm and expiry. Any failure is ErrInvalidToken.
func (p *TokenProvider) Verify(tokenStr string) (*Claims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		options = append(options, jwt.WithIssuer(p.issuer))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	// expiry is exclusive: a token is dead at its exp instant.
	if !p.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func dedupeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}
