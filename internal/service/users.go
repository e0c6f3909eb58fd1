package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"oauth2jwt/internal/models"
	"oauth2jwt/internal/storage"

	"github.com/gofrs/uuid"
)

// Authorize allows the call when roles contain required, else ErrForbidden.
func Authorize(roles []string, required string) error {
	for _, role := range roles {
		if role == required {
			return nil
		}
	}
	return ErrForbidden
}

// CurrentUser resolves the profile of the caller named in a verified token.
func (s *Service) CurrentUser(ctx context.Context, caller models.Caller) (models.UserDTO, error) {
	const op = "service.CurrentUser"

	if caller.Email == "" {
		return models.UserDTO{}, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	user, err := s.storage.GetUserByEmail(ctx, caller.Email)
	if errors.Is(err, storage.ErrUserNotFound) {
		return models.UserDTO{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return models.UserDTO{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.NewUserDTO(user), nil
}

func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (models.UserDTO, error) {
	const op = "service.GetUser"

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return models.UserDTO{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.NewUserDTO(user), nil
}

func (s *Service) ListUsers(ctx context.Context) ([]models.UserDTO, error) {
	const op = "service.ListUsers"

	users, err := s.storage.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]models.UserDTO, 0, len(users))
	for _, u := range users {
		out = append(out, models.NewUserDTO(u))
	}

	return out, nil
}

func (s *Service) GiveAdmin(ctx context.Context, userID uuid.UUID) (models.UserDTO, error) {
	return s.GrantRole(ctx, userID, models.RoleAdmin)
}

func (s *Service) RemoveAdmin(ctx context.Context, userID uuid.UUID) (models.UserDTO, error) {
	return s.RevokeRole(ctx, userID, models.RoleAdmin)
}

// GrantRole adds role to the user. Granting a held role is a no-op.
func (s *Service) GrantRole(ctx context.Context, userID uuid.UUID, role string) (models.UserDTO, error) {
	const op = "service.GrantRole"

	if err := s.requireRole(ctx, role); err != nil {
		return models.UserDTO{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return models.UserDTO{}, fmt.Errorf("%s: %w", op, err)
	}
	if user.HasRole(role) {
		return models.NewUserDTO(user), nil
	}

	if err := s.storage.AssignRole(ctx, userID, role); err != nil {
		return models.UserDTO{}, fmt.Errorf("%s: %w", op, s.mapStorageErr(err))
	}

	s.log.Info("role granted", slog.String("user_id", userID.String()), slog.String("role", role))

	return s.GetUser(ctx, userID)
}

// RevokeRole removes role from the user. The baseline role is re-added in the
// same store mutation, so the user is never left without it.
func (s *Service) RevokeRole(ctx context.Context, userID uuid.UUID, role string) (models.UserDTO, error) {
	const op = "service.RevokeRole"

	if err := s.requireRole(ctx, role); err != nil {
		return models.UserDTO{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.requireRole(ctx, models.RoleUser); err != nil {
		return models.UserDTO{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.getUser(ctx, userID); err != nil {
		return models.UserDTO{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.RemoveRole(ctx, userID, role, models.RoleUser); err != nil {
		return models.UserDTO{}, fmt.Errorf("%s: %w", op, s.mapStorageErr(err))
	}

	s.log.Info("role revoked", slog.String("user_id", userID.String()), slog.String("role", role))

	return s.GetUser(ctx, userID)
}

// CheckBootstrap verifies the reference roles every flow depends on.
func (s *Service) CheckBootstrap(ctx context.Context) error {
	for _, role := range []string{models.RoleUser, models.RoleAdmin} {
		if err := s.requireRole(ctx, role); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) getUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	user, err := s.storage.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{}, s.mapStorageErr(err)
	}
	return user, nil
}

// requireRole fails with ErrConfiguration when a reference role is missing.
func (s *Service) requireRole(ctx context.Context, name string) error {
	_, err := s.storage.GetRoleByName(ctx, name)
	if errors.Is(err, storage.ErrRoleNotFound) {
		s.log.Error("reference role missing", slog.String("role", name), slog.Any("error", err))
		return fmt.Errorf("%s: %w", name, ErrConfiguration)
	}
	return err
}

func (s *Service) mapStorageErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrRoleNotFound):
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	default:
		return err
	}
}
