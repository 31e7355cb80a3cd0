package db

import "embed"

// MigrationFS holds the numbered golang-migrate files under migrations/.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
