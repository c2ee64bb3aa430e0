// Package migrations embeds the SQL schema migrations for the local provider store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
