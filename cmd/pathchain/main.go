// Command pathchain runs the PathChain registration ledger.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/pathchain/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
