package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrison/trajector/internal/report"
	"github.com/harrison/trajector/internal/trajectory"
)

var (
	reportHTML bool
	reportOut  string
)

// NewReportCommand creates the 'trajector report' subcommand
func NewReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <trajectory.json>",
		Short: "Render a readable summary of a trajectory",
		Long: `Report renders a trajectory document as a markdown summary: run
identity, token totals, and a per-step digest. With --html the markdown
is converted to an HTML fragment.

Examples:
  trajector report trajectory.json
  trajector report trajectory.json --html --out report.html`,
		Args: cobra.ExactArgs(1),
		RunE: runReport,
	}

	cmd.Flags().BoolVar(&reportHTML, "html", false, "Render HTML instead of markdown")
	cmd.Flags().StringVar(&reportOut, "out", "", "Write the report to a file instead of stdout")

	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	traj, err := trajectory.Load(args[0])
	if err != nil {
		return err
	}

	var rendered string
	if reportHTML {
		rendered, err = report.HTML(traj)
		if err != nil {
			return err
		}
	} else {
		rendered = report.Markdown(traj)
	}

	if reportOut != "" {
		if err := os.WriteFile(reportOut, []byte(rendered), 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote report to %s\n", reportOut)
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), rendered)
	return nil
}
