// Package agentloop implements the core orchestration engine of llama-agent.
//
// It provides the bounded completion + tool-call iteration controller
// (AgentLoop), the process-wide tool catalog (ToolRegistry), the session
// permission cache (PermissionManager), token accounting (SessionStats), and
// the subagent spawner (SubagentManager).
//
// # Architecture
//
//   - AgentLoop: alternates between llm.Backend completions and sequential
//     tool execution until the model stops calling tools, the iteration
//     limit is hit, or the user interrupts.
//   - ToolRegistry: name-keyed tool definitions with JSON-schema parameters
//     and execute callbacks; enumeration is sorted so prompt tables are
//     deterministic.
//   - PermissionManager: memoizes allow/deny decisions per (tool, resource
//     signature); shared by pointer between a parent loop and its subagents.
//   - SubagentManager: spawns child loops with isolated transcripts over the
//     shared backend, tracks spawn depth (capped at 3), and extracts file and
//     command side effects from child transcripts.
//
// # Concurrency
//
// The core is single-threaded cooperative. The only cross-thread signal is a
// shared atomic interrupt flag, checked at every suspension point: before
// each completion, inside the backend via context cancellation, and by
// long-running tools through the ToolContext.
//
// # Quick Start
//
//	var interrupt atomic.Bool
//	registry := agentloop.NewToolRegistry()
//	cfg := agentloop.DefaultAgentConfig("/path/to/project")
//	loop := agentloop.New(backend, registry, cfg, &interrupt, logger)
//
//	result := loop.Run("create hello.py")
//	fmt.Println(result.FinalResponse)
package agentloop
