// Package db provides embedded database schema and migration files.
package db

import _ "embed"

// Schema contains the PostgreSQL DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// SQLiteSchema is the SQLite dialect of Schema. Foreign keys must be enabled
// on every connection for the cascades to fire.
//
//go:embed sqlite/001_schema.sql
var SQLiteSchema string
