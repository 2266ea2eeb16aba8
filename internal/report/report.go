// Package report renders human-readable summaries of trajectory
// documents, as markdown text or as HTML for sharing.
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/harrison/trajector/internal/trajectory"
)

// maxMessagePreview bounds how much of a step message the summary shows.
const maxMessagePreview = 120

// Markdown renders a trajectory as a markdown summary: run identity,
// token totals, and a per-step digest.
func Markdown(traj *trajectory.Trajectory) string {
	var sb strings.Builder

	sb.WriteString("# Trajectory Summary\n\n")
	fmt.Fprintf(&sb, "- **Session**: `%s`\n", traj.SessionID)
	fmt.Fprintf(&sb, "- **Agent**: %s %s\n", traj.Agent.Name, traj.Agent.Version)
	if traj.Agent.ModelName != "" {
		fmt.Fprintf(&sb, "- **Model**: %s\n", traj.Agent.ModelName)
	}
	fmt.Fprintf(&sb, "- **Schema**: %s\n\n", traj.SchemaVersion)

	if fm := traj.FinalMetrics; fm != nil {
		sb.WriteString("## Metrics\n\n")
		sb.WriteString("| Metric | Value |\n|---|---|\n")
		fmt.Fprintf(&sb, "| Total steps | %d |\n", fm.TotalSteps)
		fmt.Fprintf(&sb, "| Prompt tokens | %s |\n", formatTokens(fm.TotalPromptTokens))
		fmt.Fprintf(&sb, "| Completion tokens | %s |\n", formatTokens(fm.TotalCompletionTokens))
		fmt.Fprintf(&sb, "| Cached tokens | %s |\n", formatTokens(fm.TotalCachedTokens))
		sb.WriteString("\n")
	}

	sb.WriteString("## Steps\n\n")
	for _, step := range traj.Steps {
		fmt.Fprintf(&sb, "%d. **%s**: %s", step.StepID, step.Source, preview(step.Message))
		if len(step.ToolCalls) > 0 {
			names := make([]string, 0, len(step.ToolCalls))
			for _, tc := range step.ToolCalls {
				names = append(names, tc.FunctionName)
			}
			fmt.Fprintf(&sb, " _(tools: %s)_", strings.Join(names, ", "))
		}
		if step.Observation != nil {
			fmt.Fprintf(&sb, " _(results: %d)_", len(step.Observation.Results))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// HTML renders the markdown summary as an HTML fragment.
func HTML(traj *trajectory.Trajectory) (string, error) {
	md := Markdown(traj)

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("failed to render report HTML: %w", err)
	}
	return buf.String(), nil
}

// formatTokens renders an optional token total, distinguishing absence
// from zero.
func formatTokens(n *int64) string {
	if n == nil {
		return "n/a"
	}
	return fmt.Sprintf("%d", *n)
}

// preview truncates a step message to a single summary line.
func preview(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		message = message[:i]
	}
	if len(message) > maxMessagePreview {
		message = message[:maxMessagePreview] + "..."
	}
	return message
}
