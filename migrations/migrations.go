// Package migrations embeds the goose SQL migrations so the server and the
// migrate command apply the same files.
package migrations

import "embed"

// FS holds every *.sql migration.
//
//go:embed *.sql
var FS embed.FS
