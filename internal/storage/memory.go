package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"oauth2jwt/internal/models"

	"github.com/gofrs/uuid"
)

// MemoryStorage is an in-process Storage used by the memory driver and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]*models.User
	byEmail map[string]uuid.UUID
	roles   map[string]models.Role
	now     func() time.Time
}

// NewMemoryStorage seeds the reference role table with roleNames.
func NewMemoryStorage(roleNames ...string) *MemoryStorage {
	roles := make(map[string]models.Role, len(roleNames))
	for i, name := range roleNames {
		roles[name] = models.Role{ID: int64(i + 1), Name: name}
	}

	return &MemoryStorage{
		users:   make(map[uuid.UUID]*models.User),
		byEmail: make(map[string]uuid.UUID),
		roles:   roles,
		now:     time.Now,
	}
}

func (m *MemoryStorage) CreateUser(_ context.Context, user models.User) (uuid.UUID, error) {
	const op = "storage.CreateUser"

	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	email := normalizeEmail(user.Email)
	if _, ok := m.byEmail[email]; ok {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrUserExists)
	}
	for _, role := range user.Roles {
		if _, ok := m.roles[role]; !ok {
			return uuid.Nil, fmt.Errorf("%s: %s: %w", op, role, ErrRoleNotFound)
		}
	}

	stored := user
	stored.ID = id
	stored.Email = email
	stored.Roles = sortedRoles(user.Roles)
	stored.CreatedAt = m.now().UTC()

	m.users[id] = &stored
	m.byEmail[email] = id

	return id, nil
}

func (m *MemoryStorage) GetUserByID(_ context.Context, userID uuid.UUID) (models.User, error) {
	const op = "storage.GetUserByID"

	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return models.User{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	return cloneUser(user), nil
}

func (m *MemoryStorage) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	const op = "storage.GetUserByEmail"

	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return models.User{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	return cloneUser(m.users[id]), nil
}

func (m *MemoryStorage) ExistsByEmail(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.byEmail[normalizeEmail(email)]
	return ok, nil
}

func (m *MemoryStorage) ListUsers(_ context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, cloneUser(u))
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Email < users[j].Email
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})

	return users, nil
}

func (m *MemoryStorage) UpdateProfile(_ context.Context, userID uuid.UUID, name, imageURL, providerID string) error {
	const op = "storage.UpdateProfile"

	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	user.Name = name
	user.ImageURL = imageURL
	if providerID != "" {
		user.ProviderID = providerID
	}

	return nil
}

func (m *MemoryStorage) GetRoleByName(_ context.Context, name string) (models.Role, error) {
	const op = "storage.GetRoleByName"

	m.mu.RLock()
	defer m.mu.RUnlock()

	role, ok := m.roles[name]
	if !ok {
		return models.Role{}, fmt.Errorf("%s: %s: %w", op, name, ErrRoleNotFound)
	}

	return role, nil
}

func (m *MemoryStorage) AssignRole(_ context.Context, userID uuid.UUID, roleName string) error {
	const op = "storage.AssignRole"

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.roles[roleName]; !ok {
		return fmt.Errorf("%s: %s: %w", op, roleName, ErrRoleNotFound)
	}
	user, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if !user.HasRole(roleName) {
		user.Roles = sortedRoles(append(user.Roles, roleName))
	}

	return nil
}

func (m *MemoryStorage) RemoveRole(_ context.Context, userID uuid.UUID, roleName, fallback string) error {
	const op = "storage.RemoveRole"

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.roles[fallback]; !ok {
		return fmt.Errorf("%s: %s: %w", op, fallback, ErrRoleNotFound)
	}
	user, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	roles := make([]string, 0, len(user.Roles)+1)
	for _, r := range user.Roles {
		if r != roleName {
			roles = append(roles, r)
		}
	}
	hasFallback := false
	for _, r := range roles {
		if r == fallback {
			hasFallback = true
			break
		}
	}
	if !hasFallback {
		roles = append(roles, fallback)
	}
	user.Roles = sortedRoles(roles)

	return nil
}

func (m *MemoryStorage) Close() {}

func cloneUser(u *models.User) models.User {
	out := *u
	out.Roles = append([]string(nil), u.Roles...)
	return out
}

func sortedRoles(roles []string) []string {
	out := append([]string(nil), roles...)
	sort.Strings(out)
	return out
}
