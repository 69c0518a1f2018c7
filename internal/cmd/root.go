// Package cmd wires the cobra CLI surface over pkg/pgit. The CLI itself
// is explicitly out of scope for the engine (spec.md 1 lists argument
// parsing and exit-code plumbing as an external collaborator) — this
// package exists only so the engine has a real caller to exercise it
// end to end.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pgit",
	Short: "Track private paths alongside a git repository",
	Long:  `pgit relocates chosen paths into a secondary, co-located repository, leaving a symlink behind and excluding the original location from the primary repository's index.`,
}

// Execute runs the CLI, returning the first error any command reports.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")
	rootCmd.SilenceUsage = true
}

func workingDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return dir, nil
}

func verbose(cmd *cobra.Command) bool {
	v, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	return v
}
