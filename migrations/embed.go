// Package migrations embeds the schema of the postgres credential store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
