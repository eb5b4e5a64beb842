// Package storage defines persistence for users and todos.
//
// # Overview
//
// UserStore backs the identity resolver; TodoStore backs the todo API.
// The SQL implementation lives in pkg/storage/sqlstore and runs on sqlite
// for development and tests or PostgreSQL in production.
//
// # Errors
//
// Missing records match ErrNotFound. A missing user additionally matches
// auth.ErrUserNotFound, so a UserStore can be handed straight to
// auth.NewIdentityResolver. Unique violations match ErrAlreadyExists.
//
// # Caching
//
// CachedUserStore puts an expiring LRU in front of FindByUsername:
//
//	users := storage.NewCachedUserStore(sqlUsers, 1024, time.Minute, metrics)
//
// Inserts invalidate the affected entry. Entries expire after the TTL, so a
// role change in the database takes effect within one TTL.
package storage
