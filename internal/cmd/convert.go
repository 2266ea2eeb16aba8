package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harrison/trajector/internal/config"
	"github.com/harrison/trajector/internal/logger"
	"github.com/harrison/trajector/internal/runner"
	"github.com/harrison/trajector/internal/store"
	"github.com/harrison/trajector/internal/trajectory"
)

var (
	convertModel     string
	convertLogDir    string
	convertLogLevel  string
	convertOut       string
	convertNoHistory bool
	convertMaxEvents int
)

// NewConvertCommand creates the 'trajector convert' subcommand
func NewConvertCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert [log-file]",
		Short: "Convert an agent run log into a trajectory document",
		Long: `Convert a finished agent run's JSONL event log into a trajectory.

Without an argument the log file is discovered inside the configured log
directory (agent/output.jsonl, falling back to output.jsonl). The
trajectory is written as pretty-printed JSON next to the log, overwriting
any prior document, and a summary row is recorded in the run history.

Conversion is best-effort: malformed log lines are skipped, and a log
that yields no usable events reports "no trajectory" without failing.

Examples:
  trajector convert                        # discover log in the configured log dir
  trajector convert /logs/agent/output.jsonl
  trajector convert run.jsonl --model kimi-k2 --out traj.json
  trajector convert run.jsonl --no-history`,
		Args: cobra.MaximumNArgs(1),
		RunE: runConvert,
	}

	cmd.Flags().StringVar(&convertModel, "model", "", "Model name the agent ran with (fallback for events without one)")
	cmd.Flags().StringVar(&convertLogDir, "log-dir", "", "Run log directory (default: config log_dir)")
	cmd.Flags().StringVar(&convertLogLevel, "log-level", "", "Log verbosity: trace, debug, info, warn, error")
	cmd.Flags().StringVar(&convertOut, "out", "", "Trajectory output path (default: trajectory.json beside the log)")
	cmd.Flags().BoolVar(&convertNoHistory, "no-history", false, "Skip recording the run in the history store")
	cmd.Flags().IntVar(&convertMaxEvents, "max-events", 0, "Cap on decoded log events (0 = unlimited)")

	return cmd
}

// runConvert executes the conversion pipeline for one run log.
func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConvertConfig()
	if err != nil {
		return err
	}

	log := logger.NewConsoleLogger(os.Stderr, cfg.LogLevel)
	hook := runner.NewHook(cfg, log, Version)

	var runCtx runner.Context
	var traj *trajectory.Trajectory
	var logPath string

	if len(args) == 1 {
		logPath = args[0]
		if _, err := os.Stat(logPath); err != nil {
			// Missing log is informational per the best-effort contract.
			log.LogInfo(fmt.Sprintf("no output log file found at %s", logPath))
			fmt.Fprintln(cmd.OutOrStdout(), "No trajectory produced")
			return nil
		}
		outPath := convertOut
		if outPath == "" {
			outPath = filepath.Join(filepath.Dir(logPath), trajectory.FileName)
		}
		traj = hook.Extract(logPath, outPath, &runCtx)
	} else {
		logPath = trajectory.FindLogFile(cfg.LogDir)
		traj = hook.PopulateContextPostRun(&runCtx)
	}

	if traj == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No trajectory produced")
		return nil
	}

	if cfg.History.Enabled && !convertNoHistory {
		recordRun(cfg, log, traj, logPath)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Session:            %s\n", traj.SessionID)
	fmt.Fprintf(cmd.OutOrStdout(), "Steps:              %d\n", traj.FinalMetrics.TotalSteps)
	fmt.Fprintf(cmd.OutOrStdout(), "Input tokens:       %d\n", runCtx.NInputTokens)
	fmt.Fprintf(cmd.OutOrStdout(), "Output tokens:      %d\n", runCtx.NOutputTokens)
	fmt.Fprintf(cmd.OutOrStdout(), "Cache read tokens:  %d\n", runCtx.NCacheTokens)

	return nil
}

// loadConvertConfig merges the config file with convert flags.
func loadConvertConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigFromDir(".")
	if err != nil {
		return nil, err
	}

	var model, logDir, logLevel *string
	var maxEvents *int
	if convertModel != "" {
		model = &convertModel
	}
	if convertLogDir != "" {
		logDir = &convertLogDir
	}
	if convertLogLevel != "" {
		logLevel = &convertLogLevel
	}
	if convertMaxEvents != 0 {
		maxEvents = &convertMaxEvents
	}
	cfg.MergeWithFlags(model, logDir, logLevel, maxEvents)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// recordRun appends the converted run to the history store. History
// failures are logged, never fatal to the conversion.
func recordRun(cfg *config.Config, log logger.Logger, traj *trajectory.Trajectory, logPath string) {
	st, err := store.NewStore(cfg.History.DBPath)
	if err != nil {
		log.LogWarn(fmt.Sprintf("failed to open history store: %v", err))
		return
	}
	defer st.Close()

	if _, err := st.Record(traj, logPath); err != nil {
		log.LogWarn(fmt.Sprintf("failed to record run history: %v", err))
	}
}
