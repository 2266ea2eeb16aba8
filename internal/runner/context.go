// Package runner holds the collaborator surface between the conversion
// core and the surrounding agent runner: the token-count context sink
// and the best-effort post-run extraction hook.
package runner

import (
	"fmt"

	"github.com/harrison/trajector/internal/config"
	"github.com/harrison/trajector/internal/events"
	"github.com/harrison/trajector/internal/logger"
	"github.com/harrison/trajector/internal/trajectory"
)

// AgentName identifies this agent in written trajectories.
const AgentName = "code-editing-agent"

// Context is the mutable sink the runner hands in to receive aggregated
// token counts. It is only written on a successful conversion; on any
// failure the prior values are left untouched.
type Context struct {
	NInputTokens  int64
	NOutputTokens int64
	NCacheTokens  int64
}

// Hook performs post-run trajectory extraction for a finished agent run.
// Every failure mode is local and non-fatal: the contract is best-effort
// extraction, never "must succeed".
type Hook struct {
	Config       *config.Config
	Log          logger.Logger
	AgentVersion string
}

// NewHook creates a Hook. A nil logger is replaced with a NoOpLogger.
func NewHook(cfg *config.Config, log logger.Logger, agentVersion string) *Hook {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Hook{
		Config:       cfg,
		Log:          log,
		AgentVersion: agentVersion,
	}
}

// PopulateContextPostRun locates the run's log file, converts it, writes
// the trajectory into the log directory, and pushes token totals into
// ctx. Returns the trajectory, or nil when extraction was abandoned
// (missing log, no data, conversion failure). A failed trajectory write
// is logged and does not abandon the run.
func (h *Hook) PopulateContextPostRun(ctx *Context) *trajectory.Trajectory {
	logFile := trajectory.FindLogFile(h.Config.LogDir)
	if logFile == "" {
		h.Log.LogInfo(fmt.Sprintf("no output log file found in %s", h.Config.LogDir))
		return nil
	}
	return h.Extract(logFile, trajectory.OutputPath(h.Config.LogDir), ctx)
}

// Extract converts one log file, persists the trajectory at outPath
// (skipped when outPath is empty), and pushes token totals into ctx on
// success. ctx is left untouched on any abandoned conversion.
func (h *Hook) Extract(logFile, outPath string, ctx *Context) *trajectory.Trajectory {
	traj := h.ConvertLogFile(logFile)
	if traj == nil {
		return nil
	}

	if outPath != "" {
		if err := trajectory.Write(outPath, traj); err != nil {
			// Non-fatal: the run continues without a persisted trajectory.
			h.Log.LogWarn(fmt.Sprintf("failed to write trajectory: %v", err))
		} else {
			h.Log.LogInfo(fmt.Sprintf("wrote trajectory to %s", outPath))
		}
	}

	if ctx != nil && traj.FinalMetrics != nil {
		ctx.NInputTokens = tokensOrZero(traj.FinalMetrics.TotalPromptTokens)
		ctx.NOutputTokens = tokensOrZero(traj.FinalMetrics.TotalCompletionTokens)
		ctx.NCacheTokens = tokensOrZero(traj.FinalMetrics.TotalCachedTokens)
	}

	return traj
}

// ConvertLogFile runs the conversion core over one log file. Returns nil
// when the log yields no trajectory; the reason is logged, never raised.
func (h *Hook) ConvertLogFile(logFile string) *trajectory.Trajectory {
	evs, err := events.ReadLogFile(logFile, events.DecodeOptions{
		MaxLineBytes: h.Config.MaxLineBytes,
		MaxEvents:    h.Config.MaxEvents,
	})
	if err != nil {
		h.Log.LogError(fmt.Sprintf("failed to read log file: %v", err))
		return nil
	}

	traj, err := trajectory.Convert(evs, trajectory.Options{
		AgentName:    AgentName,
		AgentVersion: h.AgentVersion,
		ModelName:    h.Config.ModelName,
	})
	if err != nil {
		h.Log.LogError(fmt.Sprintf("failed to convert events to trajectory: %v", err))
		return nil
	}
	if traj == nil {
		h.Log.LogInfo("no usable events in log file, no trajectory produced")
		return nil
	}

	return traj
}

// tokensOrZero unwraps an optional total; absent counts push zero.
func tokensOrZero(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}
