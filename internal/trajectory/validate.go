package trajectory

import (
	"errors"
	"fmt"
)

// Validate checks the documented invariants of a trajectory document.
// It is used to verify written trajectories round-trip cleanly and is
// exposed through the validate command.
func (t *Trajectory) Validate() error {
	if t.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unexpected schema_version %q, want %q", t.SchemaVersion, SchemaVersion)
	}
	if t.SessionID == "" {
		return errors.New("session_id is required")
	}
	if t.Agent.Name == "" {
		return errors.New("agent.name is required")
	}
	if len(t.Steps) == 0 {
		return errors.New("trajectory has no steps")
	}

	for i := range t.Steps {
		step := &t.Steps[i]

		// Step ids must be exactly 1..N with no gaps or repeats.
		if step.StepID != i+1 {
			return fmt.Errorf("step %d: step_id %d out of sequence", i, step.StepID)
		}
		if step.Source != SourceUser && step.Source != SourceAgent {
			return fmt.Errorf("step %d: invalid source %q", step.StepID, step.Source)
		}
		if step.Source == SourceUser && len(step.ToolCalls) > 0 {
			return fmt.Errorf("step %d: user step carries tool calls", step.StepID)
		}

		if step.Observation == nil {
			continue
		}
		if len(step.Observation.Results) == 0 {
			return fmt.Errorf("step %d: observation with no results", step.StepID)
		}
		for _, res := range step.Observation.Results {
			if !step.hasToolCall(res.SourceCallID) {
				return fmt.Errorf("step %d: observation references unknown call id %q", step.StepID, res.SourceCallID)
			}
		}
	}

	if t.FinalMetrics == nil {
		return errors.New("final_metrics is required")
	}
	if t.FinalMetrics.TotalSteps != len(t.Steps) {
		return fmt.Errorf("final_metrics.total_steps %d does not match %d steps", t.FinalMetrics.TotalSteps, len(t.Steps))
	}

	return nil
}
