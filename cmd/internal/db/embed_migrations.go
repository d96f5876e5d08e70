package db

import "embed"

// MigrationFS embeds SQL migration files from cmd/internal/db/migrations.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
