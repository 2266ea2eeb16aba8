// Package trajectory converts raw agent event logs into normalized
// trajectory documents.
//
// A trajectory is the canonical record of a single agent run: an ordered
// sequence of steps (user messages, agent messages, tool executions) plus
// aggregated token metrics. The schema is stable across agent log format
// changes so downstream analysis never has to care which encoding the
// agent emitted.
package trajectory

// SchemaVersion identifies the output contract of written trajectories.
const SchemaVersion = "ATIF-v1.4"

// UnknownSessionID is used when the log carries no session identifier.
const UnknownSessionID = "unknown"

// Step sources.
const (
	SourceUser  = "user"
	SourceAgent = "agent"
)

// ToolCall is an agent-issued invocation of an external capability.
type ToolCall struct {
	// ToolCallID correlates this call with a later tool result.
	// Expected unique within a run, but uniqueness is not enforced.
	ToolCallID string `json:"tool_call_id"`

	// FunctionName is the name of the invoked tool.
	FunctionName string `json:"function_name"`

	// Arguments is the decoded JSON input passed to the tool.
	Arguments any `json:"arguments"`
}

// ObservationResult is one tool outcome bound back to its issuing call.
type ObservationResult struct {
	// SourceCallID references the ToolCall this result answers.
	// Lookup-only: the referenced call lives on the owning Step.
	SourceCallID string `json:"source_call_id"`

	// Content is the tool output text. When the tool also produced an
	// error stream the two are concatenated with a STDERR label.
	Content string `json:"content"`
}

// Observation holds the results observed for a step's tool calls.
// Created lazily on the first matching result and append-only after that.
type Observation struct {
	Results []ObservationResult `json:"results"`
}

// Metrics are per-step token counts. Fields are pointers so "not
// reported" is distinguishable from an explicit zero.
type Metrics struct {
	PromptTokens     *int64 `json:"prompt_tokens,omitempty"`
	CompletionTokens *int64 `json:"completion_tokens,omitempty"`
	CachedTokens     *int64 `json:"cached_tokens,omitempty"`
}

// FinalMetrics are run-level token totals. A total that summed to zero is
// reported as absent so "no usage data at all" stays distinguishable from
// "usage was exactly zero". TotalSteps is always the exact step count.
type FinalMetrics struct {
	TotalPromptTokens     *int64 `json:"total_prompt_tokens,omitempty"`
	TotalCompletionTokens *int64 `json:"total_completion_tokens,omitempty"`
	TotalCachedTokens     *int64 `json:"total_cached_tokens,omitempty"`
	TotalSteps            int    `json:"total_steps"`
}

// Step is one entry in the trajectory: a user message or an agent action.
type Step struct {
	// StepID is a positive integer, strictly increasing in emission
	// order and unique within the trajectory.
	StepID int `json:"step_id"`

	// Timestamp is passed through from the source event unparsed.
	Timestamp string `json:"timestamp,omitempty"`

	// Source is either "user" or "agent".
	Source string `json:"source"`

	// Message is the step's text content. May be empty.
	Message string `json:"message"`

	ModelName        string `json:"model_name,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`

	// ToolCalls are the calls issued by this step, in emission order.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Observation collects results correlated back to this step's tool
	// calls. Nil until the first result arrives.
	Observation *Observation `json:"observation,omitempty"`

	// Metrics are the token counts reported with this step, if any.
	Metrics *Metrics `json:"metrics,omitempty"`
}

// Agent identifies the agent that produced a run.
type Agent struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	ModelName string `json:"model_name,omitempty"`
}

// Trajectory is the root document describing an entire agent run.
// Immutable once assembled; produced exactly once per log file.
type Trajectory struct {
	SchemaVersion string        `json:"schema_version"`
	SessionID     string        `json:"session_id"`
	Agent         Agent         `json:"agent"`
	Steps         []Step        `json:"steps"`
	FinalMetrics  *FinalMetrics `json:"final_metrics,omitempty"`
}

// hasToolCall reports whether the step issued a tool call with the given id.
func (s *Step) hasToolCall(id string) bool {
	for _, tc := range s.ToolCalls {
		if tc.ToolCallID == id {
			return true
		}
	}
	return false
}

// appendResult attaches a result to the step's observation, creating the
// observation on first use.
func (s *Step) appendResult(res ObservationResult) {
	if s.Observation != nil {
		s.Observation.Results = append(s.Observation.Results, res)
		return
	}
	s.Observation = &Observation{Results: []ObservationResult{res}}
}
