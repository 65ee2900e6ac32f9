package migrations

import "embed"

// Migrations holds one directory of schema files per SQL dialect
// (postgres/, mysql/), applied by golang-migrate.
//
//go:embed postgres/*.sql mysql/*.sql
var Migrations embed.FS
