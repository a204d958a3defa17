package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"llamagent/agentloop"
	"llamagent/contextstore"
	"llamagent/llm"
)

// compactionPrompt is the template for the one-shot summarization run.
const compactionPrompt = `# Context Compaction

Analyze the conversation and create a JSON summary:

` + "```json" + `
{
  "summary": "2-4 paragraph summary of what was accomplished",
  "key_decisions": {"architectural": [], "implementation": [], "rejected": []},
  "current_state": "Where the work stands now",
  "pending_tasks": ["Unfinished tasks"]
}
` + "```" + `
{{USER_REQUIREMENTS}}
## Conversation
{{CONVERSATION}}`

// llmCompactResult is the parsed output of the compaction run.
type llmCompactResult struct {
	success      bool
	summary      string
	keyDecisions map[string]interface{}
	currentState string
	pendingTasks []string
	err          string
}

type compactJSON struct {
	Summary      string                 `json:"summary"`
	KeyDecisions map[string]interface{} `json:"key_decisions"`
	CurrentState string                 `json:"current_state"`
	PendingTasks []string               `json:"pending_tasks"`
}

// runLLMCompaction summarizes the conversation with a one-shot, tool-less
// agent run on the shared backend. The slot is cleared before and after so
// the main conversation reprocesses cleanly.
func runLLMCompaction(ctx *commandContext, messages []llm.Message, userRequirements string) llmCompactResult {
	var result llmCompactResult

	var conv strings.Builder
	for _, msg := range messages {
		if msg.Role == llm.RoleUser || msg.Role == llm.RoleAssistant {
			fmt.Fprintf(&conv, "**%s**: %s\n\n", msg.Role, msg.Content)
		}
	}

	prompt := strings.Replace(compactionPrompt, "{{CONVERSATION}}", conv.String(), 1)
	requirements := ""
	if userRequirements != "" {
		requirements = "\n## Additional Requirements\n" + userRequirements + "\n"
	}
	prompt = strings.Replace(prompt, "{{USER_REQUIREMENTS}}", requirements, 1)

	ctx.backend.ClearSlot()
	defer ctx.backend.ClearSlot()

	// A fresh empty registry: the compaction run is text generation only.
	cfg := agentloop.AgentConfig{
		WorkingDir:    ctx.workingDir,
		MaxIterations: 1,
		ToolTimeoutMS: agentloop.CompactToolTimeoutMS,
		YoloMode:      true,
		SkipToolTable: true,
	}
	compactLoop := agentloop.New(ctx.backend, agentloop.NewToolRegistry(), cfg, ctx.interrupt, ctx.log)
	loopResult := compactLoop.Run(prompt)
	response := loopResult.FinalResponse

	parse := func(jsonStr string) bool {
		var parsed compactJSON
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
			result.err = fmt.Sprintf("failed to parse JSON: %v", err)
			return false
		}
		result.success = true
		result.summary = parsed.Summary
		result.keyDecisions = parsed.KeyDecisions
		result.currentState = parsed.CurrentState
		result.pendingTasks = parsed.PendingTasks
		return true
	}

	// Prefer a fenced json block; fall back to the whole response, then to
	// the raw text as summary.
	if start := strings.Index(response, "```json"); start >= 0 {
		jsonStart := start + len("```json")
		if jsonStart < len(response) && response[jsonStart] == '\n' {
			jsonStart++
		}
		if end := strings.Index(response[jsonStart:], "```"); end >= 0 {
			parse(response[jsonStart : jsonStart+end])
			return result
		}
		result.err = "no closing fence found for JSON block"
		return result
	}

	if parse(response) {
		return result
	}
	result.success = true
	result.summary = response
	result.err = ""
	return result
}

// handleCompact implements /compact: programmatic extraction, LLM
// summarization, hybrid entry persistence, then reload of the compacted
// transcript.
func handleCompact(args string, ctx *commandContext) commandResult {
	messages := ctx.loop.Messages()

	// Phase 1: programmatic extraction.
	var userMessages []string
	for _, msg := range messages {
		if msg.Role != llm.RoleUser || msg.Content == "" {
			continue
		}
		content := msg.Content
		if len(content) > 1000 {
			content = content[:997] + "..."
		}
		userMessages = append(userMessages, content)
	}
	filesModified, commandsRun := agentloop.ExtractModifications(messages)

	planRef := ""
	if ctx.store.HasPlan(ctx.currentContextID) {
		planRef = "plan.md"
	}

	// Phase 2: LLM summarization.
	fmt.Println("\nGenerating summary...")
	llmResult := runLLMCompaction(ctx, messages, args)

	// Phase 3: hybrid entry.
	entry := contextstore.CompactEntry{
		UserMessages:  userMessages,
		FilesModified: filesModified,
		CommandsRun:   commandsRun,
		PlanRef:       planRef,
	}

	if llmResult.success {
		entry.Summary = llmResult.summary
		entry.KeyDecisions = llmResult.keyDecisions
		entry.CurrentState = llmResult.currentState
		entry.PendingTasks = llmResult.pendingTasks
	} else {
		var fallback strings.Builder
		fmt.Fprintf(&fallback, "Conversation with %d user messages. ", len(userMessages))
		if len(filesModified) > 0 {
			fmt.Fprintf(&fallback, "Modified %d files. ", len(filesModified))
		}
		if len(commandsRun) > 0 {
			fmt.Fprintf(&fallback, "Ran %d commands.", len(commandsRun))
		}
		entry.Summary = fallback.String()
		fmt.Printf("LLM summary failed: %s\n", llmResult.err)
	}

	// Phase 4: save and reload.
	if err := ctx.store.Compact(ctx.currentContextID, entry); err != nil {
		fmt.Printf("Failed to compact context: %v\n", err)
		return cmdContinue
	}

	fmt.Println("\nContext compacted.")
	fmt.Printf("\n--- Summary ---\n%s\n", entry.Summary)
	if entry.CurrentState != "" {
		fmt.Printf("\n--- Current State ---\n%s\n", entry.CurrentState)
	}
	if len(entry.PendingTasks) > 0 {
		fmt.Println("\n--- Pending Tasks ---")
		for _, task := range entry.PendingTasks {
			fmt.Printf("- %s\n", task)
		}
	}

	if state, err := ctx.store.Load(ctx.currentContextID); err == nil && state != nil {
		ctx.loop.SetMessages(state.Messages)
	}
	return cmdContinue
}

func registerCompactCommand(d *dispatcher) {
	d.register("/compact", handleCompact)
}
