package tools

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"llamagent/agentloop"
)

// findMostRecentPlan scans the contexts directory for the newest plan.md.
func findMostRecentPlan(contextsDir string) (planPath, contextID string) {
	entries, err := os.ReadDir(contextsDir)
	if err != nil {
		return "", ""
	}

	var bestTime time.Time
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(contextsDir, entry.Name(), "plan.md")
		info, err := os.Stat(candidate)
		if err != nil {
			continue
		}
		if planPath == "" || info.ModTime().After(bestTime) {
			planPath = candidate
			contextID = entry.Name()
			bestTime = info.ModTime()
		}
	}
	return planPath, contextID
}

func registerReadPlan(reg *agentloop.ToolRegistry) {
	reg.Register(agentloop.ToolDefinition{
		Name: "read_plan",
		Description: "Read the implementation plan for a context. Returns the plan.md content which contains " +
			"the implementation strategy, phases, design decisions, and success criteria. " +
			"If no context_id is provided, finds the most recent plan.",
		Signature: "read_plan(context_id?: string)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"context_id": map[string]interface{}{
					"type":        "string",
					"description": "The context ID to read the plan from. If omitted, finds the most recent plan.",
				},
			},
		},
		Execute: func(raw json.RawMessage, tc *agentloop.ToolContext) agentloop.ToolResult {
			args, err := agentloop.ParseToolArguments(raw)
			if err != nil {
				return fail("%v", err)
			}
			contextID, _ := agentloop.GetStringArg(args, "context_id")

			basePath := tc.ContextBasePath
			if basePath == "" {
				basePath = filepath.Join(tc.WorkingDir, ".llama-agent")
			}
			contextsDir := filepath.Join(basePath, "contexts")

			// Priority: explicit arg > current context > most recent.
			if contextID == "" {
				contextID = tc.ContextID
			}

			var planPath string
			if contextID == "" {
				planPath, contextID = findMostRecentPlan(contextsDir)
				if planPath == "" {
					return fail("No plans found in: %s\nUse context_id parameter to specify a specific plan.", contextsDir)
				}
			} else {
				planPath = filepath.Join(contextsDir, contextID, "plan.md")
			}

			content, err := os.ReadFile(planPath)
			if err != nil {
				// Legacy plan.json fallback.
				legacy := filepath.Join(contextsDir, contextID, "plan.json")
				if data, legacyErr := os.ReadFile(legacy); legacyErr == nil {
					return ok("Note: This is a legacy JSON plan format.\n\n" + string(data))
				}
				return fail("No plan found for context: %s\nExpected path: %s", contextID, planPath)
			}
			if len(content) == 0 {
				return fail("Plan file is empty: %s", planPath)
			}

			result := "# Plan from context: " + contextID + "\n"
			result += "# Path: " + planPath + "\n\n"
			result += string(content)
			return ok(result)
		},
	})
}
