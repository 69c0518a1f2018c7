// Command pgit is the CLI entry point over pkg/pgit.
package main

import (
	"fmt"
	"os"

	"github.com/crystalphantom/pgit-cli/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pgit:", err)
		os.Exit(1)
	}
}
