package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/todo-acl/pkg/storage"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		driver  string
		want    Dialect
		wantErr bool
	}{
		{"sqlite3", DialectSQLite, false},
		{"sqlite", DialectSQLite, false},
		{"SQLite3", DialectSQLite, false},
		{"postgres", DialectPostgres, false},
		{"postgresql", DialectPostgres, false},
		{"pq", DialectPostgres, false},
		{"mysql", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			got, err := ParseDialect(tt.driver)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDialect_Rebind(t *testing.T) {
	query := "SELECT * FROM todos WHERE assignee = ? AND completed = ? LIMIT ?"

	assert.Equal(t, query, DialectSQLite.Rebind(query))
	assert.Equal(t,
		"SELECT * FROM todos WHERE assignee = $1 AND completed = $2 LIMIT $3",
		DialectPostgres.Rebind(query))
	assert.Equal(t, "SELECT 1", DialectPostgres.Rebind("SELECT 1"))
}

func TestOpen(t *testing.T) {
	t.Run("sqlite in memory", func(t *testing.T) {
		db, dialect, err := Open(context.Background(), storage.DefaultConfig())
		require.NoError(t, err)
		defer db.Close()

		assert.Equal(t, DialectSQLite, dialect)
		assert.Equal(t, 1, db.Stats().MaxOpenConnections)
	})

	t.Run("unsupported driver", func(t *testing.T) {
		_, _, err := Open(context.Background(), storage.Config{Driver: "oracle", DSN: "x"})
		assert.Error(t, err)
	})

	t.Run("empty DSN", func(t *testing.T) {
		_, _, err := Open(context.Background(), storage.Config{Driver: "sqlite3"})
		assert.Error(t, err)
	})
}
