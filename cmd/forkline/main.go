// Command forkline is the thin entry point wiring internal/cliapp's
// cobra root command into a process.
package main

import (
	"fmt"
	"os"

	"github.com/sauravvenkat/forkline/internal/cliapp"
)

func main() {
	root := cliapp.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cliapp.GetExitCode(err))
	}
}
