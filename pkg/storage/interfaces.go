package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/todo-acl/pkg/auth"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a unique key is already taken
	ErrAlreadyExists = errors.New("already exists")
)

// userNotFoundError matches both ErrNotFound and auth.ErrUserNotFound so the
// identity resolver and the HTTP layer can each test for their own sentinel
type userNotFoundError struct {
	username string
}

func (e *userNotFoundError) Error() string {
	return fmt.Sprintf("user %q not found", e.username)
}

func (e *userNotFoundError) Is(target error) bool {
	return target == ErrNotFound || target == auth.ErrUserNotFound
}

// UserNotFound returns the error reported for a missing username
func UserNotFound(username string) error {
	return &userNotFoundError{username: username}
}

// UserStore persists accounts. It satisfies auth.UserFinder.
type UserStore interface {
	// FindByUsername returns the user or an error matching ErrNotFound.
	FindByUsername(ctx context.Context, username string) (*auth.User, error)

	// Insert stores a new user and fills in ID and timestamps. A taken
	// username yields ErrAlreadyExists.
	Insert(ctx context.Context, user *auth.User) error

	// List returns all users ordered by ID.
	List(ctx context.Context) ([]*auth.User, error)
}

// Todo is a single item of the todo collection
type Todo struct {
	ID          int64     `json:"id"`
	Assignee    string    `json:"assignee"`
	Description string    `json:"description"`
	Difficulty  string    `json:"difficulty"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TodoUpdate is a partial update. Nil fields are left unchanged.
type TodoUpdate struct {
	Assignee    *string `json:"assignee,omitempty"`
	Description *string `json:"description,omitempty"`
	Difficulty  *string `json:"difficulty,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// IsEmpty reports whether the update changes nothing
func (u TodoUpdate) IsEmpty() bool {
	return u.Assignee == nil && u.Description == nil && u.Difficulty == nil && u.Completed == nil
}

// Apply copies the set fields onto t
func (u TodoUpdate) Apply(t *Todo) {
	if u.Assignee != nil {
		t.Assignee = *u.Assignee
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Difficulty != nil {
		t.Difficulty = *u.Difficulty
	}
	if u.Completed != nil {
		t.Completed = *u.Completed
	}
}

// TodoFilter narrows a List call. Zero values mean no restriction.
type TodoFilter struct {
	Assignee  string
	Completed *bool
	Limit     int
	Offset    int
}

// TodoStore persists the todo collection
type TodoStore interface {
	Create(ctx context.Context, todo *Todo) error
	Get(ctx context.Context, id int64) (*Todo, error)
	List(ctx context.Context, filter TodoFilter) ([]*Todo, error)
	Update(ctx context.Context, id int64, update TodoUpdate) (*Todo, error)
	Delete(ctx context.Context, id int64) error
}

// Config selects and tunes the SQL backend
type Config struct {
	// Driver is "sqlite3" or "postgres".
	Driver string
	// DSN is a sqlite file name (or ":memory:") or a PostgreSQL URL.
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns an in-memory sqlite configuration
func DefaultConfig() Config {
	return Config{
		Driver:          "sqlite3",
		DSN:             ":memory:",
		MaxOpenConns:    20,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}
