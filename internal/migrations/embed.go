// Package migrations holds the SQL schema applied by the postgres backend.
package migrations

import "embed"

// FS contains every NNNN_name.up.sql file of this directory.
//
//go:embed *.up.sql
var FS embed.FS
