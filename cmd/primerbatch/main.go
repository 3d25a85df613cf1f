// cmd/primerbatch/main.go
package main

import (
	"os"

	"github.com/primer-cli/primerbatch/internal/cli"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, buildTime)

	if err := cli.Execute(); err != nil {
		cli.OutputError(err)
		os.Exit(cli.GetExitCode(err))
	}
}
