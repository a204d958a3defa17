package agentloop

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRegistrySortedEnumeration(t *testing.T) {
	reg := NewToolRegistry()
	for _, name := range []string{"write", "bash", "read", "glob"} {
		reg.Register(fakeTool(name, "", nil))
	}

	var names []string
	for _, def := range reg.All() {
		names = append(names, def.Name)
	}
	want := []string{"bash", "glob", "read", "write"}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("expected sorted order %v, got %v", want, names)
		}
	}
}

func TestRegistryExecuteUnknown(t *testing.T) {
	reg := NewToolRegistry()
	result := reg.Execute("missing", json.RawMessage(`{}`), &ToolContext{})
	if result.Success {
		t.Fatal("expected failure for unknown tool")
	}
	if !strings.Contains(result.Error, "unknown tool") {
		t.Errorf("expected unknown-tool error, got %q", result.Error)
	}
}

func TestRegistrySpecsWhitelist(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(fakeTool("bash", "", nil))
	reg.Register(fakeTool("read", "", nil))
	reg.Register(fakeTool("write", "", nil))

	specs := reg.Specs([]string{"read", "nonexistent"})
	if len(specs) != 1 || specs[0].Name != "read" {
		t.Errorf("expected only the whitelisted registered tool, got %+v", specs)
	}

	all := reg.Specs(nil)
	if len(all) != 3 {
		t.Errorf("empty whitelist should include all tools, got %d", len(all))
	}
}

func TestParseToolArguments(t *testing.T) {
	args, err := ParseToolArguments(json.RawMessage(`{"command":"ls","n":3,"flag":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s, ok := GetStringArg(args, "command"); !ok || s != "ls" {
		t.Errorf("GetStringArg failed: %q %v", s, ok)
	}
	if n, ok := GetIntArg(args, "n"); !ok || n != 3 {
		t.Errorf("GetIntArg failed: %d %v", n, ok)
	}
	if b, ok := GetBoolArg(args, "flag"); !ok || !b {
		t.Errorf("GetBoolArg failed: %v %v", b, ok)
	}
	if _, ok := GetStringArg(args, "missing"); ok {
		t.Error("expected missing key to report not-ok")
	}
}

func TestParseToolArgumentsMalformed(t *testing.T) {
	if _, err := ParseToolArguments(json.RawMessage(`{"a":`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestResourceSignature(t *testing.T) {
	cases := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"bash", map[string]interface{}{"command": "ls -la"}, "ls -la"},
		{"write", map[string]interface{}{"file_path": "/tmp/a", "content": "x"}, "/tmp/a"},
		{"glob", map[string]interface{}{"pattern": "**/*.go"}, "**/*.go"},
		{"spawn_agent", map[string]interface{}{"agent_name": "explorer-agent", "task": "t"}, "explorer-agent"},
		{"describe_tool", map[string]interface{}{"tool_name": "bash"}, "describe_tool"},
	}
	for _, tc := range cases {
		if got := resourceSignature(tc.name, tc.args); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}
