// Package db provides the embedded database schema and seed data.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedItems is the JSON array of demo catalog items loaded by seed-db.
//
//go:embed seed/items.json
var SeedItems []byte
