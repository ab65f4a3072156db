// Command lattice administers the lattice metadata store.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/lattice/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// Commands report their own errors; only flag and argument
		// errors from cobra reach here unprinted.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
