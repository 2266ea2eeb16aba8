package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/trajector/internal/config"
	"github.com/harrison/trajector/internal/store"
)

var (
	historyLimit int
	historyDB    string
)

// NewHistoryCommand creates the 'trajector history' subcommand
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previously converted runs",
		Long: `History lists runs recorded by the convert command, newest first,
with their session ids, step counts, and token totals.`,
		RunE: runHistory,
	}

	cmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to list (0 = all)")
	cmd.Flags().StringVar(&historyDB, "db", "", "History database path (default: config history.db_path)")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	dbPath := historyDB
	if dbPath == "" {
		cfg, err := config.LoadConfigFromDir(".")
		if err != nil {
			return err
		}
		dbPath = cfg.History.DBPath
	}

	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer st.Close()

	runs, err := st.List(historyLimit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-20s  %-36s  %5s  %8s  %8s  %8s\n",
		"CONVERTED", "SESSION", "STEPS", "PROMPT", "COMPL", "CACHED")
	for _, run := range runs {
		fmt.Fprintf(out, "%-20s  %-36s  %5d  %8s  %8s  %8s\n",
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			run.SessionID,
			run.TotalSteps,
			tokenColumn(run.PromptTokens),
			tokenColumn(run.CompletionTokens),
			tokenColumn(run.CachedTokens),
		)
	}

	return nil
}

// tokenColumn renders an optional token total for the table, keeping
// "not reported" visually distinct from zero.
func tokenColumn(n *int64) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *n)
}
