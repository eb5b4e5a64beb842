package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/todo-acl/pkg/auth"
	"github.com/platinummonkey/todo-acl/pkg/storage"
)

const userColumns = "id, username, password_hash, role, created_at, updated_at"

// UserStore is the SQL implementation of storage.UserStore
type UserStore struct {
	db      DBTX
	dialect Dialect
	now     func() time.Time
}

// NewUserStore creates a user store over db
func NewUserStore(db DBTX, dialect Dialect) *UserStore {
	return &UserStore{db: db, dialect: dialect, now: time.Now}
}

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var (
		u    auth.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}

// FindByUsername returns the user named username
func (s *UserStore) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	query := s.dialect.Rebind(`SELECT ` + userColumns + ` FROM users WHERE username = ?`)

	user, err := scanUser(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.UserNotFound(username)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// Insert stores user and sets its ID and timestamps
func (s *UserStore) Insert(ctx context.Context, user *auth.User) error {
	if user == nil || user.Username == "" {
		return errors.New("username is required")
	}
	if user.PasswordHash == "" {
		return errors.New("password hash is required")
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	query := s.dialect.Rebind(`
		INSERT INTO users (username, password_hash, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`)

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		user.Username, user.PasswordHash, string(user.Role), now, now,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %q: %w", user.Username, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("db error: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// List returns every user ordered by ID
func (s *UserStore) List(ctx context.Context) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	users := make([]*auth.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return users, nil
}
