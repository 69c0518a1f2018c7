package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crystalphantom/pgit-cli/internal/orchestrator"
	"github.com/crystalphantom/pgit-cli/pkg/pgit"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore every tracked path and stop tracking it",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

func init() {
	resetCmd.Flags().Bool("force", false, "perform the reset without confirmation")
	resetCmd.Flags().Bool("dry-run", false, "report what reset would do without changing anything")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, _ []string) error {
	dir, err := workingDir()
	if err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	result, err := pgit.New(dir).Reset(orchestrator.ResetOptions{Force: force, DryRun: dryRun})
	if err != nil {
		return err
	}

	if result.Cancelled {
		fmt.Fprintln(cmd.OutOrStdout(), "reset cancelled: pass --force or --dry-run")
		return nil
	}

	for _, w := range result.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), w)
	}
	for _, e := range result.Errors {
		fmt.Fprintln(cmd.ErrOrStderr(), e)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "restored %d file(s), removed %d symlink(s)\n", result.RestoredFiles, result.RemovedSymlinks)
	if len(result.Errors) > 0 {
		return fmt.Errorf("reset completed with %d error(s)", len(result.Errors))
	}
	return nil
}
