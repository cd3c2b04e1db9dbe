package main

import (
	"os"

	"github.com/BlockScience/koi-net-github-processor-node/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
