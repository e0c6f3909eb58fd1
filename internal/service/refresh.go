package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oauth2jwt/internal/auth"
	"oauth2jwt/internal/metrics"
	"oauth2jwt/internal/models"
	"oauth2jwt/internal/storage"

	"github.com/gofrs/uuid"
	googleuuid "github.com/google/uuid"
)

// RefreshTokens owns refresh token lifecycle: creation with supersession,
// lookup, expiry verification with eager cleanup, and deletion.
type RefreshTokens struct {
	store storage.RefreshTokenStore
	ttl   time.Duration
	now   func() time.Time
}

func NewRefreshTokens(store storage.RefreshTokenStore, ttl time.Duration, now func() time.Time) *RefreshTokens {
	if now == nil {
		now = time.Now
	}

	return &RefreshTokens{
		store: store,
		ttl:   ttl,
		now:   now,
	}
}

// Create issues a fresh token for the user, superseding any previous one.
func (r *RefreshTokens) Create(ctx context.Context, userID uuid.UUID, email string) (models.RefreshToken, error) {
	const op = "service.CreateRefreshToken"

	value, err := auth.NewRefreshTokenValue()
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}

	// rounded up so the store never drops a token before ExpiryDate
	ttlSeconds := int64((r.ttl + time.Second - 1) / time.Second)
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	tok := models.RefreshToken{
		ID:         googleuuid.NewString(),
		Token:      value,
		UserID:     userID,
		UserEmail:  email,
		ExpiryDate: r.now().Add(r.ttl).UTC(),
		TimeToLive: ttlSeconds,
	}

	if err := r.store.Save(ctx, tok); err != nil {
		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.TokenIssued("refresh")

	return tok, nil
}

func (r *RefreshTokens) FindByToken(ctx context.Context, token string) (models.RefreshToken, error) {
	const op = "service.FindByToken"

	tok, err := r.store.FindByToken(ctx, token)
	if errors.Is(err, storage.ErrTokenNotFound) {
		return tok, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}
	if err != nil {
		return tok, fmt.Errorf("%s: %w", op, err)
	}

	return tok, nil
}

// VerifyExpiration returns tok unchanged while it is live. An expired token is
// deleted before ErrTokenExpired is returned.
func (r *RefreshTokens) VerifyExpiration(ctx context.Context, tok models.RefreshToken) (models.RefreshToken, error) {
	const op = "service.VerifyExpiration"

	if r.now().Before(tok.ExpiryDate) {
		return tok, nil
	}

	if err := r.store.DeleteByToken(ctx, tok.Token); err != nil && !errors.Is(err, storage.ErrTokenNotFound) {
		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.RefreshToken{}, fmt.Errorf("%s: %w", op, ErrTokenExpired)
}

func (r *RefreshTokens) DeleteByToken(ctx context.Context, token string) error {
	const op = "service.DeleteByToken"

	err := r.store.DeleteByToken(ctx, token)
	if errors.Is(err, storage.ErrTokenNotFound) {
		return fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// DeleteByUserID removes whatever token the user holds; no token is not an error.
func (r *RefreshTokens) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	const op = "service.DeleteByUserID"

	if err := r.store.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
