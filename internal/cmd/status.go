package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crystalphantom/pgit-cli/pkg/pgit"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report which paths are currently tracked",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	dir, err := workingDir()
	if err != nil {
		return err
	}

	report, err := pgit.New(dir).Status()
	if err != nil {
		return err
	}

	if !report.Initialized {
		fmt.Fprintln(cmd.OutOrStdout(), "not initialized")
		return nil
	}

	h := report.Health
	fmt.Fprintf(cmd.OutOrStdout(), "manifest: valid=%t version=%s target=%s needs-migration=%t\n",
		h.Valid, h.CurrentVersion, h.TargetVersion, h.NeedsMigration)
	for _, e := range h.Errors {
		fmt.Fprintf(cmd.OutOrStdout(), "manifest error: %s\n", e)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "project: %s\n", report.ProjectName)
	if len(report.TrackedPaths) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no tracked paths")
		return nil
	}
	for _, p := range report.TrackedPaths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
