// Package migrations embeds the SQL migrations (ordered: 001, 002, ...).
package migrations

import "embed"

// Files holds all .sql files from this directory.
//
//go:embed *.sql
var Files embed.FS
