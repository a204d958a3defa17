package tools

import (
	"encoding/json"

	"llamagent/agentloop"
)

// spawnOutput is the result JSON handed back to the LLM. Keys are absent when
// their payload is empty.
type spawnOutput struct {
	Agent      string                 `json:"agent"`
	Result     string                 `json:"result"`
	Iterations int                    `json:"iterations"`
	Stats      spawnStats             `json:"stats"`
	Artifacts  map[string]interface{} `json:"artifacts,omitempty"`
	Files      []string               `json:"files_modified,omitempty"`
	Commands   []string               `json:"commands_run,omitempty"`
}

type spawnStats struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func registerSpawnAgent(reg *agentloop.ToolRegistry) {
	reg.Register(agentloop.ToolDefinition{
		Name: "spawn_agent",
		Description: `Spawn a subagent to perform a specialized task with a fresh context.

The subagent runs with its own context window, preventing pollution of the main agent's context.
Results are returned to the main agent upon completion.

Use this when:
- A task requires deep exploration that would pollute main context
- Specialized behavior (planning, code review, etc.) is needed
- You want to delegate a focused subtask

Available agents can be discovered from AGENT.md files in:
- ./.llama-agent/agents/ (project-local)
- ~/.llama-agent/agents/ (user-global)`,
		Signature: "spawn_agent(agent_name: string, task: string, context?: object, max_iterations?: int, working_dir?: string)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"agent_name": map[string]interface{}{
					"type":        "string",
					"description": "Name of the agent to spawn (e.g., 'explorer-agent', 'planning-agent').",
				},
				"task": map[string]interface{}{
					"type":        "string",
					"description": "The task for the subagent to perform.",
				},
				"context": map[string]interface{}{
					"type":        "object",
					"description": "Additional context to pass to the subagent (optional).",
				},
				"max_iterations": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum iterations for the subagent (default: 20).",
				},
				"working_dir": map[string]interface{}{
					"type":        "string",
					"description": "Scope subagent to this directory (relative to current or absolute).",
				},
			},
			"required": []string{"agent_name", "task"},
		},
		Execute: func(raw json.RawMessage, tc *agentloop.ToolContext) agentloop.ToolResult {
			if tc.SubagentMgr == nil {
				return fail("Subagent manager not available in this context")
			}

			args, err := agentloop.ParseToolArguments(raw)
			if err != nil {
				return fail("%v", err)
			}
			agentName, _ := agentloop.GetStringArg(args, "agent_name")
			task, _ := agentloop.GetStringArg(args, "task")
			if agentName == "" {
				return fail("agent_name is required")
			}
			if task == "" {
				return fail("task is required")
			}

			maxIterations, okArg := agentloop.GetIntArg(args, "max_iterations")
			if !okArg || maxIterations <= 0 {
				maxIterations = 20
			}
			workingDir, _ := agentloop.GetStringArg(args, "working_dir")
			extraContext, _ := args["context"].(map[string]interface{})

			req := agentloop.SubagentRequest{
				AgentName:     agentName,
				Task:          task,
				Context:       extraContext,
				MaxIterations: maxIterations,
				SpawnDepth:    tc.SubagentMgr.CurrentSpawnDepth(),
				WorkingDir:    workingDir,
			}

			result := tc.SubagentMgr.Spawn(req, nil, tc.Interrupt)
			if !result.Success {
				errMsg := result.Error
				if result.Output != "" {
					errMsg = result.Output + "\n\nError: " + result.Error
				}
				return fail("%s", errMsg)
			}

			out := spawnOutput{
				Agent:      agentName,
				Result:     result.Output,
				Iterations: result.Iterations,
				Stats: spawnStats{
					InputTokens:  result.Stats.TotalInput,
					OutputTokens: result.Stats.TotalOutput,
				},
				Artifacts: result.Artifacts,
				Files:     result.FilesModified,
				Commands:  result.CommandsRun,
			}

			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fail("failed to encode subagent result: %v", err)
			}
			return ok(string(data))
		},
	})
}
