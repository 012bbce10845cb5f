package main

import (
	"context"
	"os"

	"github.com/3leaps/protsearch/internal/cmd"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	if err := cmd.Execute(context.Background()); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
