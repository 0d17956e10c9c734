// Package migrations embeds the goose SQL migrations that define the
// database schema, so the server binary can migrate without the source tree.
package migrations

import "embed"

// FS holds every *.sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS

// TableName is the goose version table.
const TableName = "schema_migrations"
