package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"llamagent/agentloop"
)

func newTestRegistry() *agentloop.ToolRegistry {
	reg := agentloop.NewToolRegistry()
	RegisterAll(reg)
	return reg
}

func testContext(workingDir string) *agentloop.ToolContext {
	return &agentloop.ToolContext{
		WorkingDir: workingDir,
		TimeoutMS:  agentloop.DefaultToolTimeoutMS,
	}
}

func execute(t *testing.T, reg *agentloop.ToolRegistry, tc *agentloop.ToolContext, name, args string) agentloop.ToolResult {
	t.Helper()
	return reg.Execute(name, json.RawMessage(args), tc)
}

func TestRegisterAllRegistersEverything(t *testing.T) {
	reg := newTestRegistry()
	for _, name := range []string{"read", "write", "edit", "bash", "glob", "describe_tool", "read_plan", "spawn_agent"} {
		if reg.Get(name) == nil {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	reg := newTestRegistry()
	tc := testContext(dir)

	result := execute(t, reg, tc, "write", `{"file_path":"sub/hello.txt","content":"line one\nline two\n"}`)
	if !result.Success {
		t.Fatalf("write failed: %s", result.Error)
	}

	result = execute(t, reg, tc, "read", `{"file_path":"sub/hello.txt"}`)
	if !result.Success {
		t.Fatalf("read failed: %s", result.Error)
	}
	if !strings.Contains(result.Output, "1 | line one") || !strings.Contains(result.Output, "2 | line two") {
		t.Errorf("expected line-numbered output, got:\n%s", result.Output)
	}
}

func TestReadOffsetAndLimit(t *testing.T) {
	dir := t.TempDir()
	content := "a\nb\nc\nd\ne\n"
	os.WriteFile(filepath.Join(dir, "f.txt"), []byte(content), 0o644)

	reg := newTestRegistry()
	result := execute(t, reg, testContext(dir), "read", `{"file_path":"f.txt","offset":2,"limit":2}`)
	if !result.Success {
		t.Fatal(result.Error)
	}
	if !strings.Contains(result.Output, "2 | b") || !strings.Contains(result.Output, "3 | c") {
		t.Errorf("offset/limit window wrong:\n%s", result.Output)
	}
	if strings.Contains(result.Output, "4 | d") {
		t.Errorf("limit not applied:\n%s", result.Output)
	}
}

func TestReadMissingFile(t *testing.T) {
	reg := newTestRegistry()
	result := execute(t, reg, testContext(t.TempDir()), "read", `{"file_path":"nope.txt"}`)
	if result.Success {
		t.Fatal("expected failure for missing file")
	}
}

func TestEditUniqueness(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "f.txt"), []byte("foo bar foo"), 0o644)
	reg := newTestRegistry()
	tc := testContext(dir)

	result := execute(t, reg, tc, "edit", `{"file_path":"f.txt","old_string":"foo","new_string":"baz"}`)
	if result.Success {
		t.Fatal("ambiguous old_string must fail without replace_all")
	}
	if !strings.Contains(result.Error, "2 times") {
		t.Errorf("unexpected error: %s", result.Error)
	}

	result = execute(t, reg, tc, "edit", `{"file_path":"f.txt","old_string":"foo","new_string":"baz","replace_all":true}`)
	if !result.Success {
		t.Fatalf("replace_all failed: %s", result.Error)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "f.txt"))
	if string(data) != "baz bar baz" {
		t.Errorf("file = %q", data)
	}
}

func TestEditNotFound(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "f.txt"), []byte("abc"), 0o644)
	reg := newTestRegistry()

	result := execute(t, reg, testContext(dir), "edit", `{"file_path":"f.txt","old_string":"zzz","new_string":"x"}`)
	if result.Success || !strings.Contains(result.Error, "not found") {
		t.Errorf("expected not-found error, got %+v", result)
	}
}

func TestBashEcho(t *testing.T) {
	reg := newTestRegistry()
	result := execute(t, reg, testContext(t.TempDir()), "bash", `{"command":"echo x"}`)
	if !result.Success {
		t.Fatalf("bash failed: %s", result.Error)
	}
	if result.Output != "x\n" {
		t.Errorf("output = %q", result.Output)
	}
}

func TestBashExitCode(t *testing.T) {
	reg := newTestRegistry()
	result := execute(t, reg, testContext(t.TempDir()), "bash", `{"command":"exit 3"}`)
	if result.Success {
		t.Fatal("non-zero exit is a failure")
	}
	if !strings.Contains(result.Error, "code 3") {
		t.Errorf("error = %q", result.Error)
	}
}

func TestBashTimeout(t *testing.T) {
	reg := newTestRegistry()
	tc := testContext(t.TempDir())
	result := execute(t, reg, tc, "bash", `{"command":"sleep 5","timeout":100}`)
	if result.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(result.Error, "timed out") {
		t.Errorf("error = %q", result.Error)
	}
}

func TestBashRunsInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("m"), 0o644)

	reg := newTestRegistry()
	result := execute(t, reg, testContext(dir), "bash", `{"command":"ls"}`)
	if !strings.Contains(result.Output, "marker.txt") {
		t.Errorf("command must run in the working dir, got %q", result.Output)
	}
}

func TestTruncateBashOutput(t *testing.T) {
	long := strings.Repeat("x", MaxBashOutputLength+5000)
	truncated := truncateBashOutput(long)
	if len(truncated) >= len(long) {
		t.Error("expected character truncation")
	}
	if !strings.Contains(truncated, "Output truncated") {
		t.Error("expected truncation marker")
	}

	manyLines := strings.Repeat("line\n", 300)
	truncated = truncateBashOutput(manyLines)
	if !strings.Contains(truncated, "lines omitted") {
		t.Error("expected line truncation marker")
	}
	if lineCount := strings.Count(truncated, "\n"); lineCount > MaxBashOutputLines+2 {
		t.Errorf("too many lines after truncation: %d", lineCount)
	}
}

func TestGlob(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "pkg", "sub"), 0o755)
	os.WriteFile(filepath.Join(dir, "main.go"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "pkg", "a.go"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "pkg", "sub", "b.go"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0o644)

	reg := newTestRegistry()
	result := execute(t, reg, testContext(dir), "glob", `{"pattern":"**/*.go"}`)
	if !result.Success {
		t.Fatal(result.Error)
	}
	for _, want := range []string{"main.go", "pkg/a.go", "pkg/sub/b.go"} {
		if !strings.Contains(result.Output, want) {
			t.Errorf("missing %s in:\n%s", want, result.Output)
		}
	}
	if strings.Contains(result.Output, "README.md") {
		t.Error("non-matching files must not appear")
	}
}

func TestGlobNoMatches(t *testing.T) {
	reg := newTestRegistry()
	result := execute(t, reg, testContext(t.TempDir()), "glob", `{"pattern":"**/*.rs"}`)
	if !result.Success || result.Output != "No files matched the pattern." {
		t.Errorf("got %+v", result)
	}
}

func TestDescribeTool(t *testing.T) {
	reg := newTestRegistry()
	result := execute(t, reg, testContext(t.TempDir()), "describe_tool", `{"tool_name":"bash"}`)
	if !result.Success {
		t.Fatal(result.Error)
	}
	for _, want := range []string{"# bash", "Signature:", "## Parameters", `"command"`} {
		if !strings.Contains(result.Output, want) {
			t.Errorf("missing %q in describe output", want)
		}
	}

	result = execute(t, reg, testContext(t.TempDir()), "describe_tool", `{"tool_name":"nope"}`)
	if result.Success || !strings.Contains(result.Error, "unknown tool") {
		t.Errorf("got %+v", result)
	}
}

func TestReadPlanCurrentContext(t *testing.T) {
	base := t.TempDir()
	ctxDir := filepath.Join(base, "contexts", "ctx-1")
	os.MkdirAll(ctxDir, 0o755)
	os.WriteFile(filepath.Join(ctxDir, "plan.md"), []byte("# The Plan\n"), 0o644)

	reg := newTestRegistry()
	tc := testContext(t.TempDir())
	tc.ContextBasePath = base
	tc.ContextID = "ctx-1"

	result := execute(t, reg, tc, "read_plan", `{}`)
	if !result.Success {
		t.Fatal(result.Error)
	}
	if !strings.Contains(result.Output, "# Plan from context: ctx-1") || !strings.Contains(result.Output, "# The Plan") {
		t.Errorf("output:\n%s", result.Output)
	}
}

func TestReadPlanMostRecent(t *testing.T) {
	base := t.TempDir()
	for i, id := range []string{"older", "newer"} {
		dir := filepath.Join(base, "contexts", id)
		os.MkdirAll(dir, 0o755)
		os.WriteFile(filepath.Join(dir, "plan.md"), []byte(fmt.Sprintf("plan %d", i)), 0o644)
	}
	reg := newTestRegistry()
	tc := testContext(t.TempDir())
	tc.ContextBasePath = base

	result := execute(t, reg, tc, "read_plan", `{}`)
	if !result.Success {
		t.Fatal(result.Error)
	}
	if !strings.Contains(result.Output, "plan") {
		t.Errorf("output:\n%s", result.Output)
	}
}

func TestReadPlanMissing(t *testing.T) {
	base := t.TempDir()
	os.MkdirAll(filepath.Join(base, "contexts"), 0o755)

	reg := newTestRegistry()
	tc := testContext(t.TempDir())
	tc.ContextBasePath = base
	tc.ContextID = "ghost"

	result := execute(t, reg, tc, "read_plan", `{}`)
	if result.Success || !strings.Contains(result.Error, "No plan found") {
		t.Errorf("got %+v", result)
	}
}

func TestReadPlanLegacyJSON(t *testing.T) {
	base := t.TempDir()
	ctxDir := filepath.Join(base, "contexts", "legacy")
	os.MkdirAll(ctxDir, 0o755)
	os.WriteFile(filepath.Join(ctxDir, "plan.json"), []byte(`{"plan":"old"}`), 0o644)

	reg := newTestRegistry()
	tc := testContext(t.TempDir())
	tc.ContextBasePath = base
	tc.ContextID = "legacy"

	result := execute(t, reg, tc, "read_plan", `{}`)
	if !result.Success {
		t.Fatal(result.Error)
	}
	if !strings.Contains(result.Output, "legacy JSON plan format") {
		t.Errorf("output:\n%s", result.Output)
	}
}

func TestSpawnAgentWithoutManager(t *testing.T) {
	reg := newTestRegistry()
	result := execute(t, reg, testContext(t.TempDir()), "spawn_agent", `{"agent_name":"a","task":"t"}`)
	if result.Success || !strings.Contains(result.Error, "not available") {
		t.Errorf("got %+v", result)
	}
}
