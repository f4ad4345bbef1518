// Package migrations embeds the metadata store schema.
package migrations

import "embed"

// FS holds the SQL migrations applied by database.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
