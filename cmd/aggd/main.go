// Command aggd runs the DAP two-party aggregator server, and provides
// operational subcommands for configuration, migrations, and status.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/dapagg/cmd/aggd/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
