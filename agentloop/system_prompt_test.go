package agentloop

import (
	"strings"
	"testing"

	"llamagent/agentdef"
)

func TestFirstSentence(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Does a thing. More detail here.", "Does a thing."},
		{strings.Repeat("a", 100), strings.Repeat("a", 77) + "..."},
		{"short", "short"},
	}
	for _, tc := range cases {
		if got := firstSentence(tc.in); got != tc.want {
			t.Errorf("firstSentence(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildSystemPromptDefault(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(fakeTool("write", "", nil))
	reg.Register(fakeTool("bash", "", nil))

	cfg := DefaultAgentConfig("/tmp")
	prompt := buildSystemPrompt(cfg, reg)

	if !strings.Contains(prompt, "coding agent") {
		t.Error("expected the default system prompt")
	}
	if !strings.Contains(prompt, "# Available Tools") {
		t.Error("expected the tool table")
	}
	// Sorted order: bash before write.
	if strings.Index(prompt, "| bash |") > strings.Index(prompt, "| write |") {
		t.Error("tool table must be sorted by name")
	}
}

func TestBuildSystemPromptCustomReplacesDefault(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(fakeTool("bash", "", nil))

	cfg := DefaultAgentConfig("/tmp")
	cfg.CustomSystemPrompt = "You are a planner."
	prompt := buildSystemPrompt(cfg, reg)

	if !strings.HasPrefix(prompt, "You are a planner.") {
		t.Error("custom prompt must replace the default")
	}
	if strings.Contains(prompt, "coding agent") {
		t.Error("default prompt must not leak in")
	}
	if !strings.Contains(prompt, "# Available Tools") {
		t.Error("tool table still appends with a custom prompt")
	}
}

func TestBuildSystemPromptSkipToolTable(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(fakeTool("bash", "", nil))

	cfg := DefaultAgentConfig("/tmp")
	cfg.SkipToolTable = true
	if strings.Contains(buildSystemPrompt(cfg, reg), "# Available Tools") {
		t.Error("SkipToolTable must suppress the table")
	}
}

func TestBuildSystemPromptSections(t *testing.T) {
	cfg := DefaultAgentConfig("/tmp")
	cfg.SkillsPromptSection = "<available_skills>\n</available_skills>"
	cfg.AgentsPromptSection = "<available_agents>\n</available_agents>"
	prompt := buildSystemPrompt(cfg, NewToolRegistry())

	if !strings.Contains(prompt, "<available_skills>") || !strings.Contains(prompt, "<available_agents>") {
		t.Error("expected skills and agents sections appended")
	}
}

func TestGenerateAgentSystemPrompt(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(fakeTool("read", "", nil))
	reg.Register(fakeTool("glob", "", nil))

	def := &agentdef.Definition{
		Name:         "explorer-agent",
		Description:  "Explores code.",
		Instructions: "Map the codebase top down.",
		AllowedTools: []string{"read", "glob"},
	}

	prompt := GenerateAgentSystemPrompt(def, reg)
	if !strings.Contains(prompt, "You are explorer-agent, a specialized subagent.") {
		t.Error("missing identity line")
	}
	if !strings.Contains(prompt, "Map the codebase top down.") {
		t.Error("missing instructions body")
	}
	if !strings.Contains(prompt, "| read |") || !strings.Contains(prompt, "| glob |") {
		t.Error("missing whitelisted tool rows")
	}
	if !strings.Contains(prompt, "# Guidelines") {
		t.Error("missing guidelines section")
	}
}

func TestGenerateAgentSystemPromptNoTools(t *testing.T) {
	def := &agentdef.Definition{Name: "planner", Description: "Plans."}
	prompt := GenerateAgentSystemPrompt(def, NewToolRegistry())
	if !strings.Contains(prompt, "# No Tools Available") {
		t.Error("expected the no-tools section")
	}
}
