// schedulectl administers scheduler tasks: registration, shadow backfill,
// and cutover — the CLI counterpart to the admin HTTP surface.
package main

import (
	"fmt"
	"os"

	"github.com/taskflow/scheduler/cmd/schedulectl/commands"
)

// version is injected at build time via ldflags.
var version = "dev"

func main() {
	rootCmd := commands.NewRootCmd(version)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
