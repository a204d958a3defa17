package agentloop

import (
	"fmt"
	"strings"

	"llamagent/agentdef"
)

const defaultSystemPrompt = `You are a coding agent running in llama-agent, an interactive CLI assistant.

You help the user with software engineering tasks: exploring code, answering questions, editing files, and running commands. Work inside the current working directory unless told otherwise.

# Guidelines

- Prefer reading files before editing them
- Make focused, minimal changes
- Report what you did when you finish
- If a task is ambiguous, ask before acting

Use describe_tool(tool_name) for full parameter documentation of any tool.`

// firstSentence returns the first sentence of a description, or the first 80
// characters with an ellipsis when no early period exists.
func firstSentence(desc string) string {
	if idx := strings.Index(desc, "."); idx >= 0 && idx < 100 {
		return desc[:idx+1]
	}
	if len(desc) > 80 {
		return desc[:77] + "..."
	}
	return desc
}

// toolTable renders the compact tool-signature table appended to system
// prompts. An empty whitelist lists every registered tool. Registry order is
// sorted by name, so the table is deterministic.
func toolTable(reg *ToolRegistry, allowed []string) string {
	var defs []*ToolDefinition
	if len(allowed) == 0 {
		defs = reg.All()
	} else {
		for _, name := range allowed {
			if def := reg.Get(name); def != nil {
				defs = append(defs, def)
			}
		}
	}
	if len(defs) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("# Available Tools\n\n")
	sb.WriteString("| Tool | Signature | Description |\n")
	sb.WriteString("|------|-----------|-------------|\n")
	for _, def := range defs {
		fmt.Fprintf(&sb, "| %s | `%s` | %s |\n", def.Name, def.Signature, firstSentence(def.Description))
	}
	sb.WriteString("\nUse `describe_tool(tool_name)` for full parameter documentation.\n")
	return sb.String()
}

// buildSystemPrompt assembles message 0 of a transcript from the config:
// custom or default base prompt, the tool table, then any skills and
// available-agents sections supplied by the host.
func buildSystemPrompt(cfg AgentConfig, reg *ToolRegistry) string {
	var sections []string

	if cfg.CustomSystemPrompt != "" {
		sections = append(sections, cfg.CustomSystemPrompt)
	} else {
		sections = append(sections, defaultSystemPrompt)
	}

	if !cfg.SkipToolTable {
		if table := toolTable(reg, cfg.AllowedTools); table != "" {
			sections = append(sections, table)
		}
	}

	if cfg.SkillsPromptSection != "" {
		sections = append(sections, cfg.SkillsPromptSection)
	}
	if cfg.AgentsPromptSection != "" {
		sections = append(sections, cfg.AgentsPromptSection)
	}

	return strings.Join(sections, "\n\n")
}

// GenerateAgentSystemPrompt builds the specialized prompt for a subagent from
// its definition: identity line, instructions, a tool table restricted to its
// whitelist, and execution guidelines.
func GenerateAgentSystemPrompt(def *agentdef.Definition, reg *ToolRegistry) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s, a specialized subagent.\n\n", def.Name)

	if def.Instructions != "" {
		sb.WriteString(def.Instructions)
		sb.WriteString("\n\n")
	}

	if len(def.AllowedTools) > 0 {
		if table := toolTable(reg, def.AllowedTools); table != "" {
			sb.WriteString(table)
			sb.WriteString("\n")
		}
	} else {
		sb.WriteString("# No Tools Available\n\n")
		sb.WriteString("You do not have access to any tools. Provide your analysis and response based on the context provided.\n\n")
	}

	sb.WriteString("# Guidelines\n\n")
	sb.WriteString("- Focus on completing the task efficiently\n")
	sb.WriteString("- Be concise in your responses\n")
	sb.WriteString("- When finished, provide a clear summary of what you accomplished\n")

	return sb.String()
}
