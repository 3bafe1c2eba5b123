// Package migrations embeds the aggregator's schema migrations for
// golang-migrate's iofs source driver.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
