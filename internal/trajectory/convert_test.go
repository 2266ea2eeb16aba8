package trajectory

import (
	"encoding/json"
	"testing"

	"github.com/harrison/trajector/internal/events"
)

// parseEvents decodes one RawEvent per line, failing the test on bad JSON.
func parseEvents(t *testing.T, lines ...string) []events.RawEvent {
	t.Helper()
	evs := make([]events.RawEvent, 0, len(lines))
	for i, line := range lines {
		var ev events.RawEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		evs = append(evs, ev)
	}
	return evs
}

func convert(t *testing.T, opts Options, lines ...string) *Trajectory {
	t.Helper()
	traj, err := Convert(parseEvents(t, lines...), opts)
	if err != nil {
		t.Fatalf("Convert() unexpected error: %v", err)
	}
	return traj
}

func TestConvertUserAndAssistant(t *testing.T) {
	traj := convert(t, Options{AgentName: "code-editing-agent", AgentVersion: "1.0.0"},
		`{"type":"user","timestamp":"t1","sessionId":"sess-1","content":"fix bug"}`,
		`{"type":"assistant","timestamp":"t2","content":"done"}`,
	)

	if traj == nil {
		t.Fatal("expected trajectory, got nil")
	}
	if traj.SchemaVersion != SchemaVersion {
		t.Errorf("schema_version = %q", traj.SchemaVersion)
	}
	if traj.SessionID != "sess-1" {
		t.Errorf("session_id = %q", traj.SessionID)
	}
	if len(traj.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(traj.Steps))
	}

	user := traj.Steps[0]
	if user.StepID != 1 || user.Source != SourceUser || user.Message != "fix bug" {
		t.Errorf("unexpected user step: %+v", user)
	}
	if user.ToolCalls != nil || user.Observation != nil || user.Metrics != nil {
		t.Error("user step must carry no tool calls, observation, or metrics")
	}

	agent := traj.Steps[1]
	if agent.StepID != 2 || agent.Source != SourceAgent || agent.Message != "done" {
		t.Errorf("unexpected agent step: %+v", agent)
	}

	if traj.FinalMetrics == nil || traj.FinalMetrics.TotalSteps != 2 {
		t.Errorf("final_metrics.total_steps = %+v", traj.FinalMetrics)
	}
	if traj.FinalMetrics.TotalPromptTokens != nil {
		t.Error("prompt total should be absent when no usage was reported")
	}
}

func TestConvertContentBlockAssistant(t *testing.T) {
	traj := convert(t, Options{ModelName: "fallback-model"},
		`{"type":"assistant","timestamp":"t1","sessionId":"s","message":{"model":"claude-x","content":[{"type":"text","text":"thinking"},{"type":"tool_use","id":"call-1","name":"Bash","input":{"command":"ls"}},{"type":"tool_use","id":"call-2","name":"Read","input":{"file_path":"/a"}}],"usage":{"input_tokens":100,"output_tokens":40,"cache_read_input_tokens":10}},"toolUseResult":{"stdout":"file.go"}}`,
	)

	if len(traj.Steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(traj.Steps))
	}
	step := traj.Steps[0]

	if step.Source != SourceAgent {
		t.Errorf("source = %q", step.Source)
	}
	if step.ModelName != "claude-x" {
		t.Errorf("model_name = %q, event model must win over fallback", step.ModelName)
	}
	if len(step.ToolCalls) != 2 {
		t.Fatalf("got %d tool calls, want 2", len(step.ToolCalls))
	}
	if step.ToolCalls[0].ToolCallID != "call-1" || step.ToolCalls[0].FunctionName != "Bash" {
		t.Errorf("unexpected first tool call: %+v", step.ToolCalls[0])
	}
	if step.ToolCalls[1].ToolCallID != "call-2" || step.ToolCalls[1].FunctionName != "Read" {
		t.Errorf("unexpected second tool call: %+v", step.ToolCalls[1])
	}

	// Non-tool blocks are stringified into the message.
	if step.Message == "" || step.Message == toolExecutionMessage {
		t.Errorf("message = %q, want stringified text block", step.Message)
	}

	// The embedded result binds to the first tool call only.
	if step.Observation == nil || len(step.Observation.Results) != 1 {
		t.Fatalf("observation = %+v", step.Observation)
	}
	res := step.Observation.Results[0]
	if res.SourceCallID != "call-1" || res.Content != "file.go" {
		t.Errorf("unexpected observation result: %+v", res)
	}

	if step.Metrics == nil {
		t.Fatal("expected per-step metrics")
	}
	if *step.Metrics.PromptTokens != 100 || *step.Metrics.CompletionTokens != 40 || *step.Metrics.CachedTokens != 10 {
		t.Errorf("unexpected metrics: %+v", step.Metrics)
	}

	fm := traj.FinalMetrics
	if *fm.TotalPromptTokens != 100 || *fm.TotalCompletionTokens != 40 || *fm.TotalCachedTokens != 10 {
		t.Errorf("unexpected final metrics: %+v", fm)
	}
}

func TestConvertContentBlockEmptyTextFallback(t *testing.T) {
	traj := convert(t, Options{},
		`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"c1","name":"Bash","input":{}}]}}`,
	)
	if traj.Steps[0].Message != toolExecutionMessage {
		t.Errorf("message = %q, want placeholder", traj.Steps[0].Message)
	}
}

func TestConvertContentBlockResultWithoutToolCalls(t *testing.T) {
	// An embedded result with no extracted tool calls attaches nothing.
	traj := convert(t, Options{},
		`{"type":"assistant","message":{"content":"just text"},"toolUseResult":{"stdout":"ignored"}}`,
	)
	if traj.Steps[0].Observation != nil {
		t.Error("observation must require at least one extracted tool call")
	}
}

func TestConvertToolCallAndResult(t *testing.T) {
	traj := convert(t, Options{ModelName: "kimi-k2"},
		`{"type":"tool_call","timestamp":"t1","sessionId":"s","tool_call_id":"abc","tool_name":"read_file","tool_input":{"path":"/a"},"reasoning_content":"need the file"}`,
		`{"type":"tool_result","timestamp":"t2","tool_call_id":"abc","output":"hello"}`,
	)

	if len(traj.Steps) != 1 {
		t.Fatalf("got %d steps, want 1 (tool_result must not open a step)", len(traj.Steps))
	}
	step := traj.Steps[0]

	if step.Message != toolExecutionMessage {
		t.Errorf("message = %q", step.Message)
	}
	if step.ModelName != "kimi-k2" {
		t.Errorf("model_name = %q, want configured fallback", step.ModelName)
	}
	if step.ReasoningContent != "need the file" {
		t.Errorf("reasoning_content = %q", step.ReasoningContent)
	}
	if len(step.ToolCalls) != 1 || step.ToolCalls[0].ToolCallID != "abc" || step.ToolCalls[0].FunctionName != "read_file" {
		t.Fatalf("unexpected tool calls: %+v", step.ToolCalls)
	}
	if step.Observation == nil || len(step.Observation.Results) != 1 {
		t.Fatalf("observation = %+v", step.Observation)
	}
	if step.Observation.Results[0].Content != "hello" {
		t.Errorf("result content = %q", step.Observation.Results[0].Content)
	}
	if step.Observation.Results[0].SourceCallID != "abc" {
		t.Errorf("source_call_id = %q", step.Observation.Results[0].SourceCallID)
	}
}

func TestConvertToolResultErrorSuffix(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   string
	}{
		{
			name:   "output and error",
			result: `{"type":"tool_result","tool_call_id":"abc","output":"partial","error":"exit 1"}`,
			want:   "partial\nSTDERR: exit 1",
		},
		{
			name:   "error only",
			result: `{"type":"tool_result","tool_call_id":"abc","output":"","error":"exit 1"}`,
			want:   "STDERR: exit 1",
		},
		{
			name:   "output only",
			result: `{"type":"tool_result","tool_call_id":"abc","output":"clean"}`,
			want:   "clean",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traj := convert(t, Options{},
				`{"type":"tool_call","tool_call_id":"abc","tool_name":"run"}`,
				tt.result,
			)
			got := traj.Steps[0].Observation.Results[0].Content
			if got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConvertUnmatchedToolResultDropped(t *testing.T) {
	traj := convert(t, Options{},
		`{"type":"user","content":"go"}`,
		`{"type":"tool_call","tool_call_id":"abc","tool_name":"run"}`,
		`{"type":"tool_result","tool_call_id":"zzz","output":"orphan"}`,
	)

	if len(traj.Steps) != 2 {
		t.Fatalf("got %d steps, want 2 (orphan result must not create a step)", len(traj.Steps))
	}
	if traj.Steps[1].Observation != nil {
		t.Error("orphan result must not attach anywhere")
	}
}

func TestConvertDuplicateCallIDBindsMostRecent(t *testing.T) {
	traj := convert(t, Options{},
		`{"type":"tool_call","tool_call_id":"dup","tool_name":"first"}`,
		`{"type":"tool_call","tool_call_id":"dup","tool_name":"second"}`,
		`{"type":"tool_result","tool_call_id":"dup","output":"late"}`,
	)

	if traj.Steps[0].Observation != nil {
		t.Error("result bound to the older issuer")
	}
	if traj.Steps[1].Observation == nil || traj.Steps[1].Observation.Results[0].Content != "late" {
		t.Errorf("result must bind to the most recent issuer: %+v", traj.Steps[1].Observation)
	}
}

func TestConvertObservationAppendsInOrder(t *testing.T) {
	traj := convert(t, Options{},
		`{"type":"tool_call","tool_call_id":"abc","tool_name":"run"}`,
		`{"type":"tool_result","tool_call_id":"abc","output":"one"}`,
		`{"type":"tool_result","tool_call_id":"abc","output":"two"}`,
	)

	obs := traj.Steps[0].Observation
	if obs == nil || len(obs.Results) != 2 {
		t.Fatalf("observation = %+v", obs)
	}
	if obs.Results[0].Content != "one" || obs.Results[1].Content != "two" {
		t.Errorf("results out of order: %+v", obs.Results)
	}
}

func TestConvertStepIDsSequential(t *testing.T) {
	traj := convert(t, Options{},
		`{"type":"user","content":"a"}`,
		`{"type":"unknown_kind","content":"ignored"}`,
		`{"type":"tool_call","tool_call_id":"t1","tool_name":"run"}`,
		`{"type":"tool_result","tool_call_id":"t1","output":"ok"}`,
		`{"type":"assistant","content":"done"}`,
		`{"type":"summary","text":"also ignored"}`,
	)

	if len(traj.Steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(traj.Steps))
	}
	for i, step := range traj.Steps {
		if step.StepID != i+1 {
			t.Errorf("step %d has step_id %d, want %d", i, step.StepID, i+1)
		}
	}
}

func TestConvertNoData(t *testing.T) {
	t.Run("no events", func(t *testing.T) {
		traj, err := Convert(nil, Options{})
		if traj != nil || err != nil {
			t.Errorf("Convert(nil) = (%v, %v), want (nil, nil)", traj, err)
		}
	})

	t.Run("only unknown events", func(t *testing.T) {
		traj := convert(t, Options{},
			`{"type":"summary","text":"nothing"}`,
			`{"type":"system","subtype":"init"}`,
		)
		if traj != nil {
			t.Errorf("expected no trajectory, got %+v", traj)
		}
	})

	t.Run("only orphan tool_result", func(t *testing.T) {
		traj := convert(t, Options{},
			`{"type":"tool_result","tool_call_id":"x","output":"y"}`,
		)
		if traj != nil {
			t.Error("tool_result alone must not produce a trajectory")
		}
	})
}

func TestConvertSessionIDFallback(t *testing.T) {
	traj := convert(t, Options{},
		`{"type":"user","content":"hi"}`,
	)
	if traj.SessionID != UnknownSessionID {
		t.Errorf("session_id = %q, want sentinel", traj.SessionID)
	}
}

func TestConvertAgentIdentity(t *testing.T) {
	traj := convert(t, Options{AgentName: "code-editing-agent", AgentVersion: "2.1.0", ModelName: "m"},
		`{"type":"user","content":"hi"}`,
	)
	if traj.Agent.Name != "code-editing-agent" || traj.Agent.Version != "2.1.0" || traj.Agent.ModelName != "m" {
		t.Errorf("unexpected agent identity: %+v", traj.Agent)
	}
}

func TestConvertUserStructuredContentStringified(t *testing.T) {
	traj := convert(t, Options{},
		`{"type":"user","message":{"content":[{"type":"text","text":"hi"}]}}`,
	)
	want := `[{"text":"hi","type":"text"}]`
	if traj.Steps[0].Message != want {
		t.Errorf("message = %q, want %q", traj.Steps[0].Message, want)
	}
}

func TestConvertMetricsAggregation(t *testing.T) {
	traj := convert(t, Options{},
		`{"type":"assistant","message":{"content":"a","usage":{"input_tokens":10,"output_tokens":5}}}`,
		`{"type":"assistant","message":{"content":"b","usage":{"input_tokens":20,"output_tokens":7}}}`,
		`{"type":"assistant","message":{"content":"c"}}`,
	)

	fm := traj.FinalMetrics
	if fm.TotalSteps != 3 {
		t.Errorf("total_steps = %d", fm.TotalSteps)
	}
	if fm.TotalPromptTokens == nil || *fm.TotalPromptTokens != 30 {
		t.Errorf("prompt total = %v, want 30", fm.TotalPromptTokens)
	}
	if fm.TotalCompletionTokens == nil || *fm.TotalCompletionTokens != 12 {
		t.Errorf("completion total = %v, want 12", fm.TotalCompletionTokens)
	}
	// No cache reads anywhere: the field is absent, not zero.
	if fm.TotalCachedTokens != nil {
		t.Errorf("cached total = %v, want absent", fm.TotalCachedTokens)
	}
}

func TestConvertZeroUsageReportedAbsent(t *testing.T) {
	traj := convert(t, Options{},
		`{"type":"assistant","message":{"content":"a","usage":{"input_tokens":0,"output_tokens":0,"cache_read_input_tokens":0}}}`,
	)

	// Per-step metrics exist (usage was reported)...
	if traj.Steps[0].Metrics == nil {
		t.Fatal("expected per-step metrics for explicit zero usage")
	}
	// ...but zero run totals are indistinguishable from no data, so the
	// totals are absent.
	fm := traj.FinalMetrics
	if fm.TotalPromptTokens != nil || fm.TotalCompletionTokens != nil || fm.TotalCachedTokens != nil {
		t.Errorf("zero totals must be absent: %+v", fm)
	}
}

func TestConvertFlatAssistantReasoning(t *testing.T) {
	traj := convert(t, Options{},
		`{"type":"assistant","content":"answer","model":"m-flat","reasoning_content":"because"}`,
	)
	step := traj.Steps[0]
	if step.Message != "answer" || step.ModelName != "m-flat" || step.ReasoningContent != "because" {
		t.Errorf("unexpected flat assistant step: %+v", step)
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "verbatim", "verbatim"},
		{"number", float64(3), "3"},
		{"object", map[string]any{"k": "v"}, `{"k":"v"}`},
		{"list", []any{"a", float64(1)}, `["a",1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stringify(tt.in); got != tt.want {
				t.Errorf("stringify(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
