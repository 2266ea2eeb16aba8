// Package cmd wires the trajector CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "1.0.0"

// NewRootCommand creates and returns the root cobra command for trajector
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trajector",
		Short: "Convert agent run logs into normalized trajectories",
		Long: `Trajector converts the raw JSONL event log of a finished coding-agent
run into a single normalized trajectory document suitable for downstream
analysis and benchmarking.

It reconstructs the causal links between tool calls and their
later-arriving results, aggregates token usage across the run, and keeps
a local history of converted runs.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	// Add subcommands
	cmd.AddCommand(NewConvertCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewReportCommand())

	return cmd
}
