package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harrison/trajector/internal/config"
	"github.com/harrison/trajector/internal/logger"
	"github.com/harrison/trajector/internal/trajectory"
)

func testConfig(logDir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.LogDir = logDir
	cfg.ModelName = "test-model"
	return cfg
}

func writeAgentLog(t *testing.T, logDir, content string) string {
	t.Helper()
	agentDir := filepath.Join(logDir, "agent")
	if err := os.MkdirAll(agentDir, 0755); err != nil {
		t.Fatalf("failed to create agent dir: %v", err)
	}
	path := filepath.Join(agentDir, "output.jsonl")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write log: %v", err)
	}
	return path
}

func TestPopulateContextPostRun(t *testing.T) {
	logDir := t.TempDir()
	writeAgentLog(t, logDir, `{"type":"user","sessionId":"s1","content":"fix"}
{"type":"assistant","message":{"model":"m1","content":[{"type":"text","text":"done"}],"usage":{"input_tokens":50,"output_tokens":20,"cache_read_input_tokens":5}}}
`)

	hook := NewHook(testConfig(logDir), logger.NewNoOpLogger(), "1.0.0")

	var ctx Context
	traj := hook.PopulateContextPostRun(&ctx)
	if traj == nil {
		t.Fatal("expected trajectory")
	}

	if traj.Agent.Name != AgentName || traj.Agent.Version != "1.0.0" {
		t.Errorf("unexpected agent identity: %+v", traj.Agent)
	}
	if len(traj.Steps) != 2 {
		t.Errorf("got %d steps, want 2", len(traj.Steps))
	}

	// Token totals pushed into the sink.
	if ctx.NInputTokens != 50 || ctx.NOutputTokens != 20 || ctx.NCacheTokens != 5 {
		t.Errorf("unexpected context: %+v", ctx)
	}

	// Trajectory persisted at the fixed path inside the log directory.
	outPath := trajectory.OutputPath(logDir)
	loaded, err := trajectory.Load(outPath)
	if err != nil {
		t.Fatalf("trajectory not written: %v", err)
	}
	if loaded.SessionID != "s1" {
		t.Errorf("session_id = %q", loaded.SessionID)
	}
}

func TestPopulateContextPostRunMissingLog(t *testing.T) {
	logDir := t.TempDir()
	hook := NewHook(testConfig(logDir), nil, "1.0.0")

	ctx := Context{NInputTokens: 99, NOutputTokens: 88, NCacheTokens: 77}
	if traj := hook.PopulateContextPostRun(&ctx); traj != nil {
		t.Fatal("expected nil trajectory for missing log")
	}

	// Prior sink values untouched on failure.
	if ctx.NInputTokens != 99 || ctx.NOutputTokens != 88 || ctx.NCacheTokens != 77 {
		t.Errorf("context must be untouched: %+v", ctx)
	}
}

func TestPopulateContextPostRunEmptyLog(t *testing.T) {
	logDir := t.TempDir()
	writeAgentLog(t, logDir, "")

	hook := NewHook(testConfig(logDir), nil, "1.0.0")

	ctx := Context{NInputTokens: 1}
	if traj := hook.PopulateContextPostRun(&ctx); traj != nil {
		t.Fatal("expected no trajectory for empty log")
	}
	if ctx.NInputTokens != 1 {
		t.Errorf("context must be untouched: %+v", ctx)
	}
	if _, err := os.Stat(trajectory.OutputPath(logDir)); !os.IsNotExist(err) {
		t.Error("no trajectory file should be written for an empty log")
	}
}

func TestPopulateContextPostRunMalformedLineTolerated(t *testing.T) {
	logDir := t.TempDir()
	writeAgentLog(t, logDir, "{this is not json}\n"+`{"type":"user","content":"still works"}`+"\n")

	hook := NewHook(testConfig(logDir), nil, "1.0.0")

	traj := hook.PopulateContextPostRun(&Context{})
	if traj == nil {
		t.Fatal("expected trajectory despite malformed line")
	}
	if len(traj.Steps) != 1 {
		t.Errorf("got %d steps, want 1", len(traj.Steps))
	}
}

func TestExtractWithoutOutputPath(t *testing.T) {
	logDir := t.TempDir()
	logFile := writeAgentLog(t, logDir, `{"type":"user","content":"hi"}`+"\n")

	hook := NewHook(testConfig(logDir), nil, "1.0.0")

	traj := hook.Extract(logFile, "", nil)
	if traj == nil {
		t.Fatal("expected trajectory")
	}
	if _, err := os.Stat(trajectory.OutputPath(logDir)); !os.IsNotExist(err) {
		t.Error("Extract with empty outPath must not write a file")
	}
}

func TestExtractFallbackModelApplied(t *testing.T) {
	logDir := t.TempDir()
	logFile := writeAgentLog(t, logDir, `{"type":"tool_call","tool_call_id":"a","tool_name":"run"}`+"\n")

	hook := NewHook(testConfig(logDir), nil, "1.0.0")

	traj := hook.Extract(logFile, "", nil)
	if traj == nil {
		t.Fatal("expected trajectory")
	}
	if traj.Steps[0].ModelName != "test-model" {
		t.Errorf("model_name = %q, want configured fallback", traj.Steps[0].ModelName)
	}
}
