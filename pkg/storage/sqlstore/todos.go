package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/todo-acl/pkg/storage"
)

const todoColumns = "id, assignee, description, difficulty, completed, created_at, updated_at"

// TodoStore is the SQL implementation of storage.TodoStore
type TodoStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewTodoStore creates a todo store over db
func NewTodoStore(db *sql.DB, dialect Dialect) *TodoStore {
	return &TodoStore{db: db, dialect: dialect, now: time.Now}
}

func scanTodo(row interface{ Scan(...any) error }) (*storage.Todo, error) {
	var t storage.Todo
	if err := row.Scan(&t.ID, &t.Assignee, &t.Description, &t.Difficulty, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func todoNotFound(id int64) error {
	return fmt.Errorf("todo %d: %w", id, storage.ErrNotFound)
}

// Create inserts todo and sets its ID and timestamps
func (s *TodoStore) Create(ctx context.Context, todo *storage.Todo) error {
	now := s.now().UTC().Truncate(time.Microsecond)
	query := s.dialect.Rebind(`
		INSERT INTO todos (assignee, description, difficulty, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		todo.Assignee, todo.Description, todo.Difficulty, todo.Completed, now, now,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	todo.ID = id
	todo.CreatedAt = now
	todo.UpdatedAt = now
	return nil
}

// Get returns the todo with id
func (s *TodoStore) Get(ctx context.Context, id int64) (*storage.Todo, error) {
	return s.get(ctx, s.db, id)
}

func (s *TodoStore) get(ctx context.Context, db DBTX, id int64) (*storage.Todo, error) {
	query := s.dialect.Rebind(`SELECT ` + todoColumns + ` FROM todos WHERE id = ?`)
	todo, err := scanTodo(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, todoNotFound(id)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return todo, nil
}

// List returns todos matching filter ordered by ID. Offset only applies
// together with a positive Limit.
func (s *TodoStore) List(ctx context.Context, filter storage.TodoFilter) ([]*storage.Todo, error) {
	var (
		where []string
		args  []any
	)
	if filter.Assignee != "" {
		where = append(where, "assignee = ?")
		args = append(args, filter.Assignee)
	}
	if filter.Completed != nil {
		where = append(where, "completed = ?")
		args = append(args, *filter.Completed)
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + todoColumns + ` FROM todos`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY id")
	if filter.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			b.WriteString(" OFFSET ?")
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(b.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	todos := make([]*storage.Todo, 0)
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return todos, nil
}

// Update applies a partial update and returns the stored result
func (s *TodoStore) Update(ctx context.Context, id int64, update storage.TodoUpdate) (*storage.Todo, error) {
	var updated *storage.Todo
	err := WithTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		todo, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if update.IsEmpty() {
			updated = todo
			return nil
		}

		update.Apply(todo)
		todo.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)

		query := s.dialect.Rebind(`
			UPDATE todos
			SET assignee = ?, description = ?, difficulty = ?, completed = ?, updated_at = ?
			WHERE id = ?
		`)
		if _, err := tx.ExecContext(ctx, query,
			todo.Assignee, todo.Description, todo.Difficulty, todo.Completed, todo.UpdatedAt, id,
		); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		updated = todo
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the todo with id
func (s *TodoStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM todos WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return todoNotFound(id)
	}
	return nil
}
