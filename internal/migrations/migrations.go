package migrations

import "embed"

// Files holds the SQL migrations embedded into the binary.
//
// Migrations live alongside this package with a flat, sortable naming
// convention (001_init.sql, 002_...) so the runner can apply them in
// order straight from the embed.FS.
//
//go:embed *.sql
var Files embed.FS
