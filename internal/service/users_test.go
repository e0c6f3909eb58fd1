package service

import (
	"context"
	"errors"
	"slices"
	"testing"

	"oauth2jwt/internal/models"

	"github.com/gofrs/uuid"
)

func TestAuthorize(t *testing.T) {
	cases := []struct {
		name     string
		roles    []string
		required string
		wantErr  error
	}{
		{"baseline allowed", []string{models.RoleUser}, models.RoleUser, nil},
		{"admin allowed", []string{models.RoleUser, models.RoleAdmin}, models.RoleAdmin, nil},
		{"user denied admin", []string{models.RoleUser}, models.RoleAdmin, ErrForbidden},
		{"no roles", nil, models.RoleUser, ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := Authorize(tc.roles, tc.required); !errors.Is(err, tc.wantErr) {
				t.Fatalf("Authorize(%v, %q) = %v, want %v", tc.roles, tc.required, err, tc.wantErr)
			}
		})
	}
}

func TestGiveAndRemoveAdmin(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t)
	ctx := context.Background()

	got, err := env.svc.GiveAdmin(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("GiveAdmin: %v", err)
	}
	if !slices.Equal(got.Roles, []string{models.RoleAdmin, models.RoleUser}) {
		t.Fatalf("unexpected roles after grant %v", got.Roles)
	}

	again, err := env.svc.GiveAdmin(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("GiveAdmin again: %v", err)
	}
	if !slices.Equal(again.Roles, got.Roles) {
		t.Fatalf("grant must be idempotent, got %v", again.Roles)
	}

	got, err = env.svc.RemoveAdmin(ctx, reg.User.ID)
	if err != nil {
		t.Fatalf("RemoveAdmin: %v", err)
	}
	if !slices.Equal(got.Roles, []string{models.RoleUser}) {
		t.Fatalf("expected baseline role only, got %v", got.Roles)
	}
}

func TestRevokeBaselineRoleKeepsIt(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t)

	got, err := env.svc.RevokeRole(context.Background(), reg.User.ID, models.RoleUser)
	if err != nil {
		t.Fatalf("RevokeRole: %v", err)
	}
	if !slices.Equal(got.Roles, []string{models.RoleUser}) {
		t.Fatalf("user must keep the baseline role, got %v", got.Roles)
	}
}

func TestRoleChangesOnUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	missing := uuid.Must(uuid.NewV4())

	if _, err := env.svc.GiveAdmin(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GiveAdmin: expected ErrNotFound, got %v", err)
	}
	if _, err := env.svc.RemoveAdmin(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RemoveAdmin: expected ErrNotFound, got %v", err)
	}
	if err := env.svc.RevokeSessions(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RevokeSessions: expected ErrNotFound, got %v", err)
	}
	if _, err := env.svc.GetUser(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetUser: expected ErrNotFound, got %v", err)
	}
}

func TestGiveAdminWithoutAdminRoleIsConfigurationFault(t *testing.T) {
	env := newTestEnv(t, models.RoleUser)
	reg := env.register(t)

	if _, err := env.svc.GiveAdmin(context.Background(), reg.User.ID); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestCheckBootstrap(t *testing.T) {
	if err := newTestEnv(t).svc.CheckBootstrap(context.Background()); err != nil {
		t.Fatalf("CheckBootstrap: %v", err)
	}

	err := newTestEnv(t, models.RoleUser).svc.CheckBootstrap(context.Background())
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestCurrentUser(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t)
	ctx := context.Background()

	me, err := env.svc.CurrentUser(ctx, models.Caller{Email: "t@example.com", Roles: []string{models.RoleUser}})
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if me.ID != reg.User.ID || me.Name != "Test User" {
		t.Fatalf("unexpected profile %+v", me)
	}

	if _, err := env.svc.CurrentUser(ctx, models.Caller{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := env.svc.CurrentUser(ctx, models.Caller{Email: "gone@example.com"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListUsers(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)
	if _, err := env.svc.Register(context.Background(), "Second User", "s@example.com", "Password123"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	users, err := env.svc.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
}

func googleIdentity(email string) models.ExternalIdentity {
	return models.ExternalIdentity{
		Provider: models.ProviderGoogle,
		Subject:  "google-sub",
		Email:    email,
		Name:     "Google User",
		Picture:  "https://example.com/a.png",
	}
}

func TestOAuth2LoginCreatesUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.svc.OAuth2Login(ctx, googleIdentity("g@example.com"))
	if err != nil {
		t.Fatalf("OAuth2Login: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatalf("expected a session, got %+v", resp)
	}
	if !slices.Equal(resp.User.Roles, []string{models.RoleUser}) {
		t.Fatalf("unexpected roles %v", resp.User.Roles)
	}

	user, err := env.users.GetUserByEmail(ctx, "g@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if user.Provider != models.ProviderGoogle || user.ProviderID != "google-sub" || user.PasswordHash != "" {
		t.Fatalf("unexpected stored user %+v", user)
	}
}

func TestOAuth2LoginUpdatesProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.OAuth2Login(ctx, googleIdentity("g@example.com")); err != nil {
		t.Fatalf("first OAuth2Login: %v", err)
	}

	ident := googleIdentity("g@example.com")
	ident.Name = "Renamed User"
	ident.Picture = "https://example.com/b.png"

	resp, err := env.svc.OAuth2Login(ctx, ident)
	if err != nil {
		t.Fatalf("second OAuth2Login: %v", err)
	}
	if resp.User.Name != "Renamed User" || resp.User.ImageURL != "https://example.com/b.png" {
		t.Fatalf("profile not refreshed: %+v", resp.User)
	}

	all, _ := env.users.ListUsers(ctx)
	if len(all) != 1 {
		t.Fatalf("expected a single account, got %d", len(all))
	}
}

func TestOAuth2LoginRejectsMissingEmail(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.svc.OAuth2Login(context.Background(), googleIdentity("")); !errors.Is(err, ErrMissingEmail) {
		t.Fatalf("expected ErrMissingEmail, got %v", err)
	}
}

func TestOAuth2LoginRejectsProviderMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.register(t)

	_, err := env.svc.OAuth2Login(context.Background(), googleIdentity("t@example.com"))
	if !errors.Is(err, ErrProviderMismatch) {
		t.Fatalf("expected ErrProviderMismatch, got %v", err)
	}
}
