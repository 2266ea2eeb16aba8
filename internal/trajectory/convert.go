package trajectory

import (
	"encoding/json"
	"fmt"

	"github.com/harrison/trajector/internal/events"
)

// toolExecutionMessage is the placeholder message for agent steps that
// carry tool activity but no text content.
const toolExecutionMessage = "Tool execution"

// Options configure a conversion run. All values are supplied by the
// surrounding runner; the converter never discovers them itself.
type Options struct {
	// AgentName and AgentVersion identify the agent in the output
	// document.
	AgentName    string
	AgentVersion string

	// ModelName is the run's configured model. Used as fallback when
	// an event does not name its own model. May be empty.
	ModelName string
}

// Convert turns an ordered event list into a trajectory document.
//
// It handles both upstream log encodings in a single pass: the
// content-block encoding (assistant events carry a message envelope with
// a content block list) and the flat encoding (assistant/tool_call/
// tool_result records with top-level fields). Events with unknown types
// are ignored.
//
// Conversion is best-effort: a nil trajectory with a nil error means the
// log held no usable data, and any unexpected failure is recovered at
// this boundary and returned as a diagnostic rather than propagated.
func Convert(evs []events.RawEvent, opts Options) (traj *Trajectory, err error) {
	defer func() {
		if r := recover(); r != nil {
			traj = nil
			err = fmt.Errorf("conversion failed: %v", r)
		}
	}()

	if len(evs) == 0 {
		return nil, nil
	}

	sessionID := evs[0].String("sessionId")
	if sessionID == "" {
		sessionID = UnknownSessionID
	}

	b := &builder{model: opts.ModelName}
	for _, ev := range evs {
		switch ev.Type() {
		case events.TypeUser:
			b.userStep(ev)
		case events.TypeAssistant:
			b.assistantStep(ev)
		case events.TypeToolCall:
			b.toolCallStep(ev)
		case events.TypeToolResult:
			b.correlate(ev)
		default:
			// Unknown event types produce no step and no error.
		}
	}

	if len(b.steps) == 0 {
		return nil, nil
	}

	return &Trajectory{
		SchemaVersion: SchemaVersion,
		SessionID:     sessionID,
		Agent: Agent{
			Name:      opts.AgentName,
			Version:   opts.AgentVersion,
			ModelName: opts.ModelName,
		},
		Steps:        b.steps,
		FinalMetrics: aggregate(b.steps),
	}, nil
}

// builder accumulates steps during the single conversion pass. The step
// counter only advances for events that create a step, so step ids come
// out as exactly 1..N.
type builder struct {
	steps  []Step
	stepID int
	model  string
}

// nextStep appends a step with the next id and returns a pointer to it.
func (b *builder) nextStep(ev events.RawEvent, source string) *Step {
	b.stepID++
	b.steps = append(b.steps, Step{
		StepID:    b.stepID,
		Timestamp: ev.Timestamp(),
		Source:    source,
	})
	return &b.steps[len(b.steps)-1]
}

// userStep opens a step for a user message. Both encodings are handled:
// the content-block encoding nests content under a message envelope, the
// flat encoding carries it at the top level.
func (b *builder) userStep(ev events.RawEvent) {
	content := ev["content"]
	if msg := ev.Map("message"); msg != nil {
		content = msg["content"]
	}

	step := b.nextStep(ev, SourceUser)
	step.Message = stringify(content)
}

// assistantStep opens a step for an agent message, dispatching on the
// event's shape. A message envelope marks the content-block encoding;
// its absence marks the flat encoding. The two arms are kept separate
// on purpose - their field layouts have nothing in common.
func (b *builder) assistantStep(ev events.RawEvent) {
	if msg := ev.Map("message"); msg != nil {
		b.blockAssistantStep(ev, msg)
		return
	}
	b.flatAssistantStep(ev)
}

// blockAssistantStep handles the content-block encoding: content is
// either a plain string or an ordered list of blocks, where tool_use
// blocks become tool calls and everything else contributes its
// stringified form to the message.
func (b *builder) blockAssistantStep(ev events.RawEvent, msg map[string]any) {
	var toolCalls []ToolCall
	var text string

	if blocks, ok := msg["content"].([]any); ok {
		for _, raw := range blocks {
			if block, ok := raw.(map[string]any); ok && block["type"] == "tool_use" {
				toolCalls = append(toolCalls, ToolCall{
					ToolCallID:   stringify(block["id"]),
					FunctionName: stringify(block["name"]),
					Arguments:    block["input"],
				})
				continue
			}
			text += stringify(raw)
		}
	} else {
		text = stringify(msg["content"])
	}

	step := b.nextStep(ev, SourceAgent)
	step.Message = text
	if step.Message == "" {
		step.Message = toolExecutionMessage
	}
	step.ModelName = stringify(msg["model"])
	if step.ModelName == "" {
		step.ModelName = b.model
	}
	step.ToolCalls = toolCalls
	step.Metrics = usageMetrics(msg)

	// This encoding never defers correlation: an embedded result is
	// bound immediately, and only to the first extracted call. The
	// narrowing to a single call is inherited from the upstream log
	// producer and relied on downstream.
	if result := ev.Map("toolUseResult"); len(result) > 0 && len(toolCalls) > 0 {
		step.appendResult(ObservationResult{
			SourceCallID: toolCalls[0].ToolCallID,
			Content:      stringify(result["stdout"]),
		})
	}
}

// flatAssistantStep handles the flat encoding: content is taken
// verbatim, tool calls arrive later as separate tool_call events.
func (b *builder) flatAssistantStep(ev events.RawEvent) {
	step := b.nextStep(ev, SourceAgent)
	step.Message = stringify(ev["content"])
	step.ModelName = ev.String("model")
	if step.ModelName == "" {
		step.ModelName = b.model
	}
	step.ReasoningContent = ev.String("reasoning_content")
}

// toolCallStep opens a step for a standalone tool_call event (flat
// encoding only). The step carries exactly one tool call and a fixed
// placeholder message; its observation arrives later via correlate.
func (b *builder) toolCallStep(ev events.RawEvent) {
	step := b.nextStep(ev, SourceAgent)
	step.Message = toolExecutionMessage
	step.ModelName = ev.String("model")
	if step.ModelName == "" {
		step.ModelName = b.model
	}
	step.ReasoningContent = ev.String("reasoning_content")
	step.ToolCalls = []ToolCall{{
		ToolCallID:   ev.String("tool_call_id"),
		FunctionName: ev.String("tool_name"),
		Arguments:    ev["tool_input"],
	}}
}

// correlate binds a tool_result event to the step that issued the
// matching call. Steps are scanned most-recent-first so a reused call id
// binds to its nearest issuer. A result with no matching call anywhere
// is dropped: it never becomes a step and never fails the run.
func (b *builder) correlate(ev events.RawEvent) {
	callID := ev.String("tool_call_id")
	if callID == "" || len(b.steps) == 0 {
		return
	}

	output := ev.String("output")
	if errText := ev.String("error"); errText != "" {
		if output != "" {
			output = output + "\nSTDERR: " + errText
		} else {
			output = "STDERR: " + errText
		}
	}

	for i := len(b.steps) - 1; i >= 0; i-- {
		step := &b.steps[i]
		if step.Source != SourceAgent || !step.hasToolCall(callID) {
			continue
		}
		step.appendResult(ObservationResult{
			SourceCallID: callID,
			Content:      output,
		})
		return
	}
}

// usageMetrics builds a per-step metrics record from a message
// envelope's usage object, or nil when no usage is reported.
func usageMetrics(msg map[string]any) *Metrics {
	usage, _ := msg["usage"].(map[string]any)
	if len(usage) == 0 {
		return nil
	}
	return &Metrics{
		PromptTokens:     tokenCount(usage, "input_tokens"),
		CompletionTokens: tokenCount(usage, "output_tokens"),
		CachedTokens:     tokenCount(usage, "cache_read_input_tokens"),
	}
}

// tokenCount extracts a token counter from a usage object, nil when the
// field is missing or not numeric.
func tokenCount(usage map[string]any, key string) *int64 {
	n, ok := usage[key].(float64)
	if !ok {
		return nil
	}
	v := int64(n)
	return &v
}

// aggregate sums per-step token counts into run-level totals. A field
// whose sum is zero is reported absent, not zero.
func aggregate(steps []Step) *FinalMetrics {
	var prompt, completion, cached int64
	for _, s := range steps {
		if s.Metrics == nil {
			continue
		}
		if s.Metrics.PromptTokens != nil {
			prompt += *s.Metrics.PromptTokens
		}
		if s.Metrics.CompletionTokens != nil {
			completion += *s.Metrics.CompletionTokens
		}
		if s.Metrics.CachedTokens != nil {
			cached += *s.Metrics.CachedTokens
		}
	}

	return &FinalMetrics{
		TotalPromptTokens:     omitZero(prompt),
		TotalCompletionTokens: omitZero(completion),
		TotalCachedTokens:     omitZero(cached),
		TotalSteps:            len(steps),
	}
}

// omitZero maps a zero total to absence.
func omitZero(n int64) *int64 {
	if n == 0 {
		return nil
	}
	return &n
}

// stringify renders an arbitrary decoded JSON value as text. Strings
// pass through verbatim; structured values are rendered as compact JSON
// so block lists and nested objects survive into the message field.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
