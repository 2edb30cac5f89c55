// Package db embeds the goose SQL migrations applied at startup.
package db

import "embed"

// Migrations holds every migrations/*.sql file.
//
//go:embed migrations/*.sql
var Migrations embed.FS
