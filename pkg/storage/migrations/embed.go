// Package migrations embeds the schema migrations for the SQL drivers.
package migrations

import "embed"

// SQLite holds the migrations applied by the sqlite driver.
//
//go:embed sqlite/*.sql
var SQLite embed.FS

// Postgres holds the migrations applied by the postgres driver.
//
//go:embed postgres/*.sql
var Postgres embed.FS
