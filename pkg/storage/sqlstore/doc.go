// Package sqlstore implements storage.UserStore and storage.TodoStore on
// database/sql. The sqlite3 driver (github.com/mattn/go-sqlite3) serves
// development and tests; PostgreSQL (github.com/lib/pq) serves production.
//
// Queries are written with ? placeholders and rebound for PostgreSQL.
// Schema changes are goose migrations embedded per dialect and applied by
// Migrate.
//
//	db, dialect, err := sqlstore.Open(ctx, storage.Config{Driver: "sqlite3", DSN: ":memory:"})
//	if err := sqlstore.Migrate(ctx, db, dialect); err != nil { ... }
//	users := sqlstore.NewUserStore(db, dialect)
//	todos := sqlstore.NewTodoStore(db, dialect)
package sqlstore
