// Package migrations embeds the goose schema migrations for each dialect
package migrations

import "embed"

// Migrations holds one directory of goose SQL files per dialect
//
//go:embed sqlite3/*.sql postgres/*.sql
var Migrations embed.FS
