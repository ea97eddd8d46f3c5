// Package migrations embeds the SQL migration files for the deskchat cache.
package migrations

import "embed"

// FS holds the embedded migration files.
//
//go:embed *.sql
var FS embed.FS
