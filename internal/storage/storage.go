package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"oauth2jwt/internal/models"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	usersTable     = "users"
	rolesTable     = "roles"
	userRolesTable = "user_roles"

	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

var (
	ErrUserNotFound  = errors.New("storage: user not found")
	ErrUserExists    = errors.New("storage: user already exists")
	ErrRoleNotFound  = errors.New("storage: role not found")
	ErrTokenNotFound = errors.New("storage: refresh token not found")
)

// Storage is the credential store: identities, password hashes, provider
// linkage and role assignments. Emails are matched case-insensitively.
type Storage interface {
	// Users
	CreateUser(ctx context.Context, user models.User) (uuid.UUID, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, name, imageURL, providerID string) error

	// Roles
	GetRoleByName(ctx context.Context, name string) (models.Role, error)
	AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error
	// RemoveRole drops roleName and guarantees fallback is held, in one transaction.
	RemoveRole(ctx context.Context, userID uuid.UUID, roleName, fallback string) error

	Close()
}

// PostgresStorage expects the tables
//
//	users(id uuid pk default gen_random_uuid(), email text unique, name text,
//	      password_hash text null, image_url text null, provider text,
//	      provider_id text null, enabled bool, created_at timestamptz default now())
//	roles(id bigserial pk, name text unique)
//	user_roles(user_id uuid references users, role_id bigint references roles, primary key(user_id, role_id))
type PostgresStorage struct {
	db pgxPool
}

// pgxPool is the part of *pgxpool.Pool the store uses.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Close()
}

func NewPostgresStorage(ctx context.Context, DbURL string) (*PostgresStorage, error) {
	const op = "storage.NewPostgresStorage"

	conn, err := pgxpool.Connect(ctx, DbURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return newPostgresStorage(conn), nil
}

func newPostgresStorage(db pgxPool) *PostgresStorage {
	return &PostgresStorage{
		db: db,
	}
}

func (p *PostgresStorage) CreateUser(ctx context.Context, user models.User) (uuid.UUID, error) {
	const op = "storage.CreateUser"

	var userID uuid.UUID

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return userID, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := fmt.Sprintf(`INSERT INTO %s(email, name, password_hash, image_url, provider, provider_id, enabled)
	VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''), $7) RETURNING id;`, usersTable)

	err = tx.QueryRow(ctx, query,
		normalizeEmail(user.Email),
		user.Name,
		user.PasswordHash,
		user.ImageURL,
		string(user.Provider),
		user.ProviderID,
		user.Enabled,
	).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return userID, fmt.Errorf("%s: %w", op, ErrUserExists)
		}
		return userID, fmt.Errorf("%s: %w", op, err)
	}

	for _, role := range user.Roles {
		if err := assignRole(ctx, tx, userID, role); err != nil {
			return uuid.Nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return userID, nil
}

const selectUser = `SELECT u.id, u.email, u.name, COALESCE(u.password_hash, ''), COALESCE(u.image_url, ''),
	u.provider, COALESCE(u.provider_id, ''), u.enabled, u.created_at,
	COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
	FROM ` + usersTable + ` u
	LEFT JOIN ` + userRolesTable + ` ur ON ur.user_id = u.id
	LEFT JOIN ` + rolesTable + ` r ON r.id = ur.role_id`

func scanUser(row pgx.Row) (models.User, error) {
	var (
		user     models.User
		provider string
	)

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.ImageURL,
		&provider,
		&user.ProviderID,
		&user.Enabled,
		&user.CreatedAt,
		&user.Roles,
	)
	user.Provider = models.AuthProvider(provider)

	return user, err
}

func (p *PostgresStorage) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	const op = "storage.GetUserByID"

	query := selectUser + ` WHERE u.id=$1 GROUP BY u.id;`

	user, err := scanUser(p.db.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return user, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return user, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (p *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	const op = "storage.GetUserByEmail"

	query := selectUser + ` WHERE u.email=$1 GROUP BY u.id;`

	user, err := scanUser(p.db.QueryRow(ctx, query, normalizeEmail(email)))
	if errors.Is(err, pgx.ErrNoRows) {
		return user, fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if err != nil {
		return user, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (p *PostgresStorage) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	const op = "storage.ExistsByEmail"

	var exists bool
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE email=$1);", usersTable)

	if err := p.db.QueryRow(ctx, query, normalizeEmail(email)).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

func (p *PostgresStorage) ListUsers(ctx context.Context) ([]models.User, error) {
	const op = "storage.ListUsers"

	users := []models.User{}
	query := selectUser + ` GROUP BY u.id ORDER BY u.created_at;`

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return users, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return users, fmt.Errorf("%s: %w", op, err)
		}

		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s (rows): %w", op, err)
	}

	return users, nil
}

func (p *PostgresStorage) UpdateProfile(ctx context.Context, userID uuid.UUID, name, imageURL, providerID string) error {
	const op = "storage.UpdateProfile"

	query := fmt.Sprintf(`UPDATE %s SET name=$1, image_url=NULLIF($2, ''),
	provider_id=COALESCE(NULLIF($3, ''), provider_id) WHERE id=$4`, usersTable)

	tag, err := p.db.Exec(ctx, query, name, imageURL, providerID, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}

	return nil
}

func (p *PostgresStorage) GetRoleByName(ctx context.Context, name string) (models.Role, error) {
	const op = "storage.GetRoleByName"

	var role models.Role
	query := fmt.Sprintf("SELECT id, name FROM %s WHERE name=$1", rolesTable)

	err := p.db.QueryRow(ctx, query, name).Scan(&role.ID, &role.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return role, fmt.Errorf("%s: %s: %w", op, name, ErrRoleNotFound)
	}
	if err != nil {
		return role, fmt.Errorf("%s: %w", op, err)
	}

	return role, nil
}

func (p *PostgresStorage) AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	const op = "storage.AssignRole"

	if err := assignRole(ctx, p.db, userID, roleName); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *PostgresStorage) RemoveRole(ctx context.Context, userID uuid.UUID, roleName, fallback string) error {
	const op = "storage.RemoveRole"

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id=$1
	AND role_id=(SELECT id FROM %s WHERE name=$2)`, userRolesTable, rolesTable)
	if _, err := tx.Exec(ctx, query, userID, roleName); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := assignRole(ctx, tx, userID, fallback); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *PostgresStorage) Close() {
	p.db.Close()
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func assignRole(ctx context.Context, db querier, userID uuid.UUID, roleName string) error {
	var roleID int64
	roleQuery := fmt.Sprintf("SELECT id FROM %s WHERE name=$1", rolesTable)
	err := db.QueryRow(ctx, roleQuery, roleName).Scan(&roleID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", roleName, ErrRoleNotFound)
	}
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT INTO %s(user_id, role_id) VALUES ($1, $2)
	ON CONFLICT DO NOTHING`, userRolesTable)

	if _, err := db.Exec(ctx, query, userID, roleID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return ErrUserNotFound
		}
		return err
	}

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
