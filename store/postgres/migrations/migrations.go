// Package migrations carries the embedded schema files goose applies
// on startup.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
