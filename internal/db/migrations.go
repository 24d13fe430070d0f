// Package db embeds the goose SQL migrations for the service schema.
package db

import "embed"

// Migrations holds the goose migration files under migrations/
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory within Migrations that goose reads
const MigrationsDir = "migrations"
