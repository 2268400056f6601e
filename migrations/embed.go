// Package migrations holds the embedded SQL migrations
// (order matters: 001, 002, ...).
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
