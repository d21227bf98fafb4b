// Package migrations embeds the SQLite schema migrations of the history store.
package migrations

import "embed"

// FS holds the embedded SQL migration files.
//
//go:embed *.sql
var FS embed.FS
