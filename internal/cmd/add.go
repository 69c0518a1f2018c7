package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crystalphantom/pgit-cli/pkg/pgit"
)

var addCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Move paths into private storage and track them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	dir, err := workingDir()
	if err != nil {
		return err
	}

	result, err := pgit.New(dir).Add(args)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), w)
	}
	if verbose(cmd) {
		for _, hash := range result.CommitHashes {
			fmt.Fprintf(cmd.OutOrStdout(), "committed %s\n", hash)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "tracked %d path(s)\n", len(result.Tracked))
	return nil
}
