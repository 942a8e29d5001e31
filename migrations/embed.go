// Package migrations embeds the PostgreSQL journal schema so that the
// migrate command and integration tests apply the same files.
package migrations

import "embed"

// FS holds the golang-migrate formatted migration files.
//
//go:embed *.sql
var FS embed.FS
