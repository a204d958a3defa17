package main

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"llamagent/agentdef"
	"llamagent/agentloop"
	"llamagent/contextstore"
	"llamagent/llm"
	"llamagent/planning"
	"llamagent/planning/qaui"
	"llamagent/skills"
)

// commandResult tells the REPL what to do after a dispatch.
type commandResult int

const (
	cmdContinue  commandResult = iota // get next input
	cmdExit                           // exit the agent
	cmdRunPrompt                      // input is not a command, run as prompt
)

// commandContext carries references to every manager a command may need.
type commandContext struct {
	loop             *agentloop.AgentLoop
	store            *contextstore.Store
	skillsMgr        *skills.Manager
	agentReg         *agentdef.Registry
	subagentMgr      *agentloop.SubagentManager
	backend          llm.Backend
	registry         *agentloop.ToolRegistry
	workingDir       string
	currentContextID string
	interrupt        *atomic.Bool
	log              *zap.Logger
	planWorkflow     *planning.Workflow
}

type commandHandler func(args string, ctx *commandContext) commandResult

// dispatcher routes slash commands by their first word.
type dispatcher struct {
	handlers map[string]commandHandler
}

func newDispatcher() *dispatcher {
	return &dispatcher{handlers: make(map[string]commandHandler)}
}

func (d *dispatcher) register(name string, handler commandHandler) {
	d.handlers[name] = handler
}

// dispatch routes input. Non-command input returns cmdRunPrompt.
func (d *dispatcher) dispatch(input string, ctx *commandContext) commandResult {
	if !strings.HasPrefix(input, "/") {
		return cmdRunPrompt
	}

	name := input
	args := ""
	if idx := strings.IndexByte(input, ' '); idx >= 0 {
		name = input[:idx]
		args = strings.TrimSpace(input[idx+1:])
	}

	handler, exists := d.handlers[name]
	if !exists {
		return cmdRunPrompt
	}
	return handler(args, ctx)
}

// findContextByPrefix resolves a context id prefix, requiring a unique match.
func findContextByPrefix(store *contextstore.Store, prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("a context id prefix is required")
	}

	var matches []string
	for _, summary := range store.List() {
		if strings.HasPrefix(summary.ID, prefix) {
			matches = append(matches, summary.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no context matches prefix %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("prefix %q matches %d contexts, be more specific", prefix, len(matches))
	}
}

func registerAllCommands(d *dispatcher) {
	registerExitCommands(d)
	registerContextCommands(d)
	registerInfoCommands(d)
	registerCompactCommand(d)
	registerPlanCommand(d)
}

func registerExitCommands(d *dispatcher) {
	exit := func(string, *commandContext) commandResult { return cmdExit }
	d.register("/exit", exit)
	d.register("/quit", exit)
}

func registerContextCommands(d *dispatcher) {
	d.register("/clear", func(_ string, ctx *commandContext) commandResult {
		ctx.loop.Clear()
		id, err := ctx.store.Create()
		if err != nil {
			fmt.Printf("Failed to create context: %v\n", err)
			return cmdContinue
		}
		ctx.currentContextID = id
		ctx.loop.SetContextID(id)
		fmt.Printf("Conversation cleared. New context: %s\n", id[:8])
		return cmdContinue
	})

	d.register("/list", func(_ string, ctx *commandContext) commandResult {
		contexts := ctx.store.List()
		if len(contexts) == 0 {
			fmt.Println("\nNo saved conversations.")
			return cmdContinue
		}
		fmt.Println("\nSaved conversations:")
		for _, c := range contexts {
			marker := ""
			if c.ID == ctx.currentContextID {
				marker = " *"
			}
			fmt.Printf("  %s%s  [%d msgs]  %s\n", c.ID[:8], marker, c.MessageCount, c.Preview)
		}
		fmt.Println("\n  * = current context")
		return cmdContinue
	})

	d.register("/switch", func(args string, ctx *commandContext) commandResult {
		id, err := findContextByPrefix(ctx.store, args)
		if err != nil {
			fmt.Printf("%v\n", err)
			return cmdContinue
		}

		state, err := ctx.store.Load(id)
		if err != nil || state == nil {
			fmt.Println("Failed to load context.")
			return cmdContinue
		}
		ctx.currentContextID = id
		ctx.loop.SetMessages(state.Messages)
		ctx.loop.SetContextID(id)
		fmt.Printf("Switched to context %s (%d messages)\n", id[:8], len(state.Messages))
		return cmdContinue
	})

	d.register("/delete", func(args string, ctx *commandContext) commandResult {
		id, err := findContextByPrefix(ctx.store, args)
		if err != nil {
			fmt.Printf("%v\n", err)
			return cmdContinue
		}
		if id == ctx.currentContextID {
			fmt.Println("Cannot delete current context. Use /clear first.")
			return cmdContinue
		}
		if err := ctx.store.Delete(id); err != nil {
			fmt.Printf("Failed to delete context: %v\n", err)
			return cmdContinue
		}
		fmt.Printf("Deleted context %s\n", id[:8])
		return cmdContinue
	})
}

func registerInfoCommands(d *dispatcher) {
	d.register("/tools", func(_ string, ctx *commandContext) commandResult {
		fmt.Println("\nAvailable tools:")
		for _, def := range ctx.registry.All() {
			fmt.Printf("  %s:\n", def.Name)
			fmt.Printf("    %s\n", def.Description)
		}
		return cmdContinue
	})

	d.register("/stats", func(_ string, ctx *commandContext) commandResult {
		stats := ctx.loop.Stats()
		fmt.Println("\nSession Statistics:")
		fmt.Printf("  Prompt tokens:  %d\n", stats.TotalInput)
		fmt.Printf("  Output tokens:  %d\n", stats.TotalOutput)
		if stats.TotalCached > 0 {
			fmt.Printf("  Cached tokens:  %d\n", stats.TotalCached)
		}
		fmt.Printf("  Total tokens:   %d\n", stats.TotalInput+stats.TotalOutput)
		if stats.TotalPromptMS > 0 {
			fmt.Printf("  Prompt time:    %.2fs\n", stats.TotalPromptMS/1000.0)
		}
		if stats.TotalPredictedMS > 0 {
			fmt.Printf("  Gen time:       %.2fs\n", stats.TotalPredictedMS/1000.0)
			fmt.Printf("  Avg speed:      %.1f tok/s\n", float64(stats.TotalOutput)*1000.0/stats.TotalPredictedMS)
		}
		return cmdContinue
	})

	d.register("/skills", func(_ string, ctx *commandContext) commandResult {
		list := ctx.skillsMgr.Skills()
		if len(list) == 0 {
			fmt.Println("\nNo skills discovered.")
			fmt.Println("Skills are loaded from:")
			fmt.Println("  ./.llama-agent/skills/  (project-local)")
			fmt.Println("  ~/.llama-agent/skills/  (user-global)")
			return cmdContinue
		}
		fmt.Println("\nAvailable skills:")
		for _, skill := range list {
			fmt.Printf("  %s:\n", skill.Name)
			fmt.Printf("    %s\n", skill.Description)
			fmt.Printf("    Path: %s\n", skill.Path)
		}
		return cmdContinue
	})

	d.register("/subagents", func(_ string, ctx *commandContext) commandResult {
		agents := ctx.agentReg.Agents()
		if len(agents) == 0 {
			fmt.Println("\nNo subagents discovered.")
			fmt.Println("Create an AGENT.md file in .llama-agent/agents/<name>/ to define a subagent.")
			return cmdContinue
		}
		fmt.Println("\nAvailable subagents:")
		for _, def := range agents {
			fmt.Printf("  %s:\n", def.Name)
			fmt.Printf("    %s\n", def.Description)
			if len(def.AllowedTools) > 0 {
				fmt.Printf("    Tools: %s\n", strings.Join(def.AllowedTools, ", "))
			}
			fmt.Printf("    Path: %s\n", def.Path)
		}
		return cmdContinue
	})
}

func registerPlanCommand(d *dispatcher) {
	d.register("/plan", func(args string, ctx *commandContext) commandResult {
		if ctx.planWorkflow == nil {
			ctx.planWorkflow = &planning.Workflow{
				Store:       ctx.store,
				Agents:      ctx.agentReg,
				Subagents:   ctx.subagentMgr,
				Backend:     ctx.backend,
				Registry:    ctx.registry,
				Permissions: ctx.loop.PermissionManager(),
				WorkingDir:  ctx.workingDir,
				Interrupt:   ctx.interrupt,
				Out:         os.Stdout,
				Log:         ctx.log,
				RunQA:       qaui.Show,
				Approve: func(prompt string) bool {
					return qaui.PromptApproval(prompt, ctx.interrupt)
				},
				ConfirmResume: func(state planning.State) bool {
					return qaui.PromptApproval("Resume existing session?", ctx.interrupt)
				},
			}
		}

		if err := ctx.planWorkflow.Run(args, ctx.currentContextID); err != nil {
			fmt.Printf("%v\n", err)
		}
		return cmdContinue
	})
}
