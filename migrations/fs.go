// Package migrations embeds the SQL schema migrations so the migrator and
// tests can run them without a checkout.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
