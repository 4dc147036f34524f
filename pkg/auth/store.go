package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// UserStore provides access to local user records. Lookup misses are
// reported as (nil, nil), not as errors.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*LocalUser, error)
	GetByUsername(ctx context.Context, username string) (*LocalUser, error)
	GetByField(ctx context.Context, field, value string) (*LocalUser, error)
	GetOrCreate(ctx context.Context, username string) (*LocalUser, bool, error)
	GetOrCreateWithID(ctx context.Context, id int64, username string) (*LocalUser, bool, error)
	Save(ctx context.Context, user *LocalUser) error
}

// lookupColumns whitelists the fields usable with GetByField
var lookupColumns = map[string]string{
	"username":   "username",
	"email":      "email",
	"first_name": "first_name",
	"last_name":  "last_name",
}

const userColumns = `id, username, email, first_name, last_name, is_active, is_staff, date_joined, last_login, attributes`

// PostgresUserStore implements UserStore on PostgreSQL
type PostgresUserStore struct {
	db *sql.DB
}

// NewPostgresUserStore creates a new postgres-backed user store
func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

// GetByID retrieves a user by primary key
func (s *PostgresUserStore) GetByID(ctx context.Context, id int64) (*LocalUser, error) {
	return s.getWhere(ctx, "id = $1", id)
}

// GetByUsername retrieves a user by username
func (s *PostgresUserStore) GetByUsername(ctx context.Context, username string) (*LocalUser, error) {
	return s.getWhere(ctx, "username = $1", username)
}

// GetByField retrieves a user by an alternate lookup field
func (s *PostgresUserStore) GetByField(ctx context.Context, field, value string) (*LocalUser, error) {
	column, ok := lookupColumns[field]
	if !ok {
		return nil, fmt.Errorf("unknown user lookup field: %s", field)
	}
	return s.getWhere(ctx, column+" = $1", value)
}

func (s *PostgresUserStore) getWhere(ctx context.Context, where string, arg interface{}) (*LocalUser, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users WHERE `+where, arg)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return user, nil
}

// GetOrCreate fetches the user with the given username, creating an active
// user record when none exists. The second return value reports creation.
func (s *PostgresUserStore) GetOrCreate(ctx context.Context, username string) (*LocalUser, bool, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		return user, false, nil
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, is_active, is_staff, date_joined, attributes)
		VALUES ($1, true, false, NOW(), '{}')
		ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		RETURNING `+userColumns, username)

	user, err = scanUser(row)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}
	return user, true, nil
}

// GetOrCreateWithID is GetOrCreate with an externally assigned primary key,
// used to keep primary keys aligned with the identity provider.
func (s *PostgresUserStore) GetOrCreateWithID(ctx context.Context, id int64, username string) (*LocalUser, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users WHERE id = $1 AND username = $2`, id, username)

	user, err := scanUser(row)
	if err == nil {
		return user, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to fetch user: %w", err)
	}

	row = s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, username, is_active, is_staff, date_joined, attributes)
		VALUES ($1, $2, true, false, NOW(), '{}')
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username
		RETURNING `+userColumns, id, username)

	user, err = scanUser(row)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user with id %d: %w", id, err)
	}
	return user, true, nil
}

// Save persists the mutable fields of the user
func (s *PostgresUserStore) Save(ctx context.Context, user *LocalUser) error {
	attrs, err := json.Marshal(user.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal user attributes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE users
		SET email = $1, first_name = $2, last_name = $3, is_active = $4,
			is_staff = $5, last_login = $6, attributes = $7
		WHERE id = $8
	`, user.Email, user.FirstName, user.LastName, user.IsActive,
		user.IsStaff, user.LastLogin, attrs, user.ID)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// TouchLastLogin stamps the user's last login time
func (s *PostgresUserStore) TouchLastLogin(ctx context.Context, userID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, at, userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*LocalUser, error) {
	user := &LocalUser{}
	var attrs []byte
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FirstName,
		&user.LastName, &user.IsActive, &user.IsStaff, &user.DateJoined,
		&user.LastLogin, &attrs)
	if err != nil {
		return nil, err
	}

	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &user.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user attributes: %w", err)
		}
	}
	return user, nil
}
