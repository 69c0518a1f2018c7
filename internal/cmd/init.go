package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crystalphantom/pgit-cli/pkg/pgit"
)

var initCmd = &cobra.Command{
	Use:   "init [project-name]",
	Short: "Bootstrap private tracking for the current directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := workingDir()
	if err != nil {
		return err
	}

	name := filepath.Base(dir)
	if len(args) > 0 {
		name = args[0]
	}

	result, err := pgit.New(dir).Init(name)
	if err != nil {
		return err
	}

	if result.AlreadyInitialized {
		fmt.Fprintln(cmd.OutOrStdout(), "already initialized")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", result.ProjectName)
	return nil
}
