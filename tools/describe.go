package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"llamagent/agentloop"
)

// registerDescribeTool registers the progressive-disclosure tool: system
// prompts carry only compact signatures, describe_tool returns the full
// schema on demand.
func registerDescribeTool(reg *agentloop.ToolRegistry) {
	reg.Register(agentloop.ToolDefinition{
		Name:        "describe_tool",
		Description: "Get the full parameter documentation for a tool. Use this before calling a tool whose parameters you are unsure about.",
		Signature:   "describe_tool(tool_name: string)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"tool_name": map[string]interface{}{
					"type":        "string",
					"description": "Name of the tool to describe.",
				},
			},
			"required": []string{"tool_name"},
		},
		Execute: func(raw json.RawMessage, tc *agentloop.ToolContext) agentloop.ToolResult {
			args, err := agentloop.ParseToolArguments(raw)
			if err != nil {
				return fail("%v", err)
			}
			name, okArg := agentloop.GetStringArg(args, "tool_name")
			if !okArg || name == "" {
				return fail("tool_name is required")
			}

			def := reg.Get(name)
			if def == nil {
				available := make([]string, 0, reg.Count())
				for _, d := range reg.All() {
					available = append(available, d.Name)
				}
				return fail("unknown tool: %s (available: %s)", name, strings.Join(available, ", "))
			}

			schema, err := json.MarshalIndent(def.Parameters, "", "  ")
			if err != nil {
				return fail("failed to render schema: %v", err)
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "# %s\n\n", def.Name)
			fmt.Fprintf(&sb, "%s\n\n", def.Description)
			fmt.Fprintf(&sb, "Signature: `%s`\n\n", def.Signature)
			fmt.Fprintf(&sb, "## Parameters\n\n```json\n%s\n```\n", schema)
			return ok(sb.String())
		},
	})
}
