// Command penguin is the CLI entrypoint for the Penguin agent runtime core:
// it loads the layered configuration, builds the Core facade, and exposes
// process/run/checkpoints subcommands, grounded on hector/cmd/hector/main.go
// and vanducng-goclaw/cmd/root.go's cobra wiring.
//
// Usage:
//
//	penguin process "fix the failing test in pkg/foo"
//	penguin run "migrate the config loader to the new layout" --max-iterations 20
//	penguin checkpoints list
package main

import (
	"fmt"
	"log/slog"
	"os"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("penguin: command failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
