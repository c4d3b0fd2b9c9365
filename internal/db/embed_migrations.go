package db

import "embed"

// MigrationFS embeds the SQL migrations for the pings table and the network_runs ledger.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
