// Package migrations embeds the ordered schema changes applied by cmd/migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
