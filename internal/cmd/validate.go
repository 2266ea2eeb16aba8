package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/trajector/internal/trajectory"
)

// NewValidateCommand creates the 'trajector validate' subcommand
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <trajectory.json>",
		Short: "Check a written trajectory against its schema invariants",
		Long: `Validate re-reads a trajectory document and verifies the documented
invariants: the schema version literal, step ids forming exactly 1..N,
observation results referencing tool calls on their own step, and the
step count in the final metrics.`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	traj, err := trajectory.Load(args[0])
	if err != nil {
		return err
	}

	if err := traj.Validate(); err != nil {
		return fmt.Errorf("invalid trajectory %s: %w", args[0], err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "OK: %s (%d steps, session %s)\n",
		args[0], len(traj.Steps), traj.SessionID)
	return nil
}
