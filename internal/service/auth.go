package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"oauth2jwt/internal/auth"
	"oauth2jwt/internal/metrics"
	"oauth2jwt/internal/models"
	"oauth2jwt/internal/storage"

	"github.com/gofrs/uuid"
)

// Login verifies email and password. Unknown email, wrong password, provider
// accounts without a password and disabled accounts all fail the same way.
func (s *Service) Login(ctx context.Context, email, password string) (models.AuthResponse, error) {
	const op = "service.Login"

	user, err := s.storage.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	// runs even on a miss so both failure paths cost one bcrypt comparison
	matched := auth.CheckPasswordHash(user.PasswordHash, password)
	if err != nil || !matched || !user.Enabled {
		metrics.AuthEvent("login", "failure")
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	resp, err := s.issueSession(ctx, user)
	if err != nil {
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.AuthEvent("login", "success")

	return resp, nil
}

// Register creates a LOCAL account with the baseline role and returns a
// usable session for it.
func (s *Service) Register(ctx context.Context, name, email, password string) (models.AuthResponse, error) {
	const op = "service.Register"

	email = strings.ToLower(strings.TrimSpace(email))

	exists, err := s.storage.ExistsByEmail(ctx, email)
	if err != nil {
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if exists {
		metrics.AuthEvent("register", "failure")
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, ErrEmailInUse)
	}

	if err := s.requireRole(ctx, models.RoleUser); err != nil {
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	passwordHash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	id, err := s.storage.CreateUser(ctx, models.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		Provider:     models.ProviderLocal,
		Roles:        []string{models.RoleUser},
		Enabled:      true,
	})
	if errors.Is(err, storage.ErrUserExists) {
		metrics.AuthEvent("register", "failure")
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, ErrEmailInUse)
	}
	if err != nil {
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.GetUserByID(ctx, id)
	if err != nil {
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := s.issueSession(ctx, user)
	if err != nil {
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.AuthEvent("register", "success")

	s.log.Info("user registered", slog.String("user_id", id.String()))

	return resp, nil
}

// Refresh mints a new access token for the owner of refreshToken. The refresh
// token itself is echoed back unchanged.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (models.AuthResponse, error) {
	const op = "service.Refresh"

	tok, err := s.refresh.FindByToken(ctx, refreshToken)
	if errors.Is(err, ErrTokenNotFound) {
		metrics.AuthEvent("refresh", "failure")
		return models.AuthResponse{}, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, ErrTokenNotFound)
	}
	if err != nil {
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	tok, err = s.refresh.VerifyExpiration(ctx, tok)
	if errors.Is(err, ErrTokenExpired) {
		metrics.AuthEvent("refresh", "failure")
		return models.AuthResponse{}, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, ErrTokenExpired)
	}
	if err != nil {
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.GetUserByID(ctx, tok.UserID)
	if errors.Is(err, storage.ErrUserNotFound) {
		metrics.AuthEvent("refresh", "failure")
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	if err != nil {
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if !user.Enabled {
		metrics.AuthEvent("refresh", "failure")
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	accessToken, err := s.tokens.Issue(user.Email, user.Roles)
	if err != nil {
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.TokenIssued("access")
	metrics.AuthEvent("refresh", "success")

	return s.newAuthResponse(accessToken, refreshToken, user), nil
}

// Logout deletes the refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	const op = "service.Logout"

	err := s.refresh.DeleteByToken(ctx, refreshToken)
	if errors.Is(err, ErrTokenNotFound) {
		metrics.AuthEvent("logout", "failure")
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, ErrTokenNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.AuthEvent("logout", "success")

	return nil
}

// OAuth2Login signs in a verified external identity, creating the account on
// first sight and refreshing its name and picture otherwise.
func (s *Service) OAuth2Login(ctx context.Context, ext models.ExternalIdentity) (models.AuthResponse, error) {
	const op = "service.OAuth2Login"

	if strings.TrimSpace(ext.Email) == "" {
		metrics.AuthEvent("oauth2", "failure")
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, ErrMissingEmail)
	}

	user, err := s.storage.GetUserByEmail(ctx, ext.Email)
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		user, err = s.registerExternal(ctx, ext)
		if err != nil {
			return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
		}
	case err != nil:
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	default:
		if user.Provider != ext.Provider {
			metrics.AuthEvent("oauth2", "failure")
			return models.AuthResponse{}, fmt.Errorf("%s: signed up with %s: %w", op, user.Provider, ErrProviderMismatch)
		}
		if err := s.storage.UpdateProfile(ctx, user.ID, ext.Name, ext.Picture, ext.Subject); err != nil {
			return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
		}
		user.Name = ext.Name
		user.ImageURL = ext.Picture
	}

	if !user.Enabled {
		metrics.AuthEvent("oauth2", "failure")
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	resp, err := s.issueSession(ctx, user)
	if err != nil {
		return models.AuthResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	metrics.AuthEvent("oauth2", "success")

	return resp, nil
}

func (s *Service) registerExternal(ctx context.Context, ext models.ExternalIdentity) (models.User, error) {
	if err := s.requireRole(ctx, models.RoleUser); err != nil {
		return models.User{}, err
	}

	id, err := s.storage.CreateUser(ctx, models.User{
		Email:      ext.Email,
		Name:       ext.Name,
		ImageURL:   ext.Picture,
		Provider:   ext.Provider,
		ProviderID: ext.Subject,
		Roles:      []string{models.RoleUser},
		Enabled:    true,
	})
	if err != nil {
		return models.User{}, err
	}

	s.log.Info("external user registered",
		slog.String("user_id", id.String()),
		slog.String("provider", string(ext.Provider)),
	)

	return s.storage.GetUserByID(ctx, id)
}

// RevokeSessions drops the refresh token held by the user, if any.
func (s *Service) RevokeSessions(ctx context.Context, userID uuid.UUID) error {
	const op = "service.RevokeSessions"

	if _, err := s.getUser(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.refresh.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Service) issueSession(ctx context.Context, user models.User) (models.AuthResponse, error) {
	accessToken, err := s.tokens.Issue(user.Email, user.Roles)
	if err != nil {
		return models.AuthResponse{}, err
	}
	metrics.TokenIssued("access")

	refreshToken, err := s.refresh.Create(ctx, user.ID, user.Email)
	if err != nil {
		return models.AuthResponse{}, err
	}

	return s.newAuthResponse(accessToken, refreshToken.Token, user), nil
}

func (s *Service) newAuthResponse(accessToken, refreshToken string, user models.User) models.AuthResponse {
	return models.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    models.TokenTypeBearer,
		ExpiresIn:    s.tokens.ExpiresIn(),
		User:         models.NewUserDTO(user),
	}
}
