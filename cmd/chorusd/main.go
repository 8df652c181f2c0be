// Command chorusd runs the Chorus task-coordination HTTP server, and
// offers a couple of operator-facing subcommands alongside it.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
