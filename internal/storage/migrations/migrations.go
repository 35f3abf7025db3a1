// Package migrations embeds the SQL schema for the Postgres storage
// backend. golang-migrate reads these files through the iofs source.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Version is the schema version the binary expects.
const Version = 1
