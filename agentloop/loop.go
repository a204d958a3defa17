package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"llamagent/llm"
)

// StopReason describes why Run returned.
type StopReason int

const (
	StopCompleted     StopReason = iota // model finished without tool calls
	StopMaxIterations                   // hit iteration limit
	StopUserCancelled                   // user interrupted
	StopAgentError                      // backend or internal error
)

func (r StopReason) String() string {
	switch r {
	case StopCompleted:
		return "completed"
	case StopMaxIterations:
		return "max_iterations"
	case StopUserCancelled:
		return "user_cancelled"
	default:
		return "error"
	}
}

// RunResult is returned from one Run invocation.
type RunResult struct {
	StopReason    StopReason
	FinalResponse string
	Iterations    int
}

// AgentLoop is the bounded completion + tool-call iteration controller for a
// single conversation.
//
// Not thread-safe: all methods must be called from the core thread. The
// interrupt flag is the only cross-thread signal.
type AgentLoop struct {
	backend   llm.Backend
	registry  *ToolRegistry
	config    AgentConfig
	interrupt *atomic.Bool
	log       *zap.Logger

	messages    []llm.Message
	ownedPerms  *PermissionManager
	permissions *PermissionManager
	toolCtx     ToolContext
	stats       SessionStats
}

// New constructs an agent loop. The system prompt is built from the config
// and becomes message 0 of the transcript. When ParentPermissions is set the
// loop shares the parent's decision cache; otherwise it owns a fresh one.
func New(backend llm.Backend, registry *ToolRegistry, config AgentConfig, interrupt *atomic.Bool, logger *zap.Logger) *AgentLoop {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.MaxIterations = ClampIterations(config.MaxIterations)
	if config.ToolTimeoutMS <= 0 {
		config.ToolTimeoutMS = DefaultToolTimeoutMS
	}

	l := &AgentLoop{
		backend:   backend,
		registry:  registry,
		config:    config,
		interrupt: interrupt,
		log:       logger,
	}

	if config.ParentPermissions != nil {
		l.permissions = config.ParentPermissions
	} else {
		l.ownedPerms = NewPermissionManager(config.YoloMode)
		l.permissions = l.ownedPerms
	}

	l.toolCtx = ToolContext{
		WorkingDir:      config.WorkingDir,
		Interrupt:       interrupt,
		TimeoutMS:       config.ToolTimeoutMS,
		ContextBasePath: config.ContextBasePath,
		ContextID:       config.ContextID,
		SubagentMgr:     config.SubagentMgr,
	}

	l.stats.ContextWindow = backend.ContextWindow()
	l.messages = []llm.Message{llm.SystemMessage(buildSystemPrompt(config, registry))}
	return l
}

// Messages returns the transcript. Callers must not mutate it.
func (l *AgentLoop) Messages() []llm.Message { return l.messages }

// SetMessages replaces the transcript when loading a persisted context.
func (l *AgentLoop) SetMessages(messages []llm.Message) {
	l.messages = append([]llm.Message(nil), messages...)
}

// Stats returns the session statistics.
func (l *AgentLoop) Stats() *SessionStats { return &l.stats }

// ContextID returns the current context id.
func (l *AgentLoop) ContextID() string { return l.config.ContextID }

// SetContextID switches the loop (and its tool context) to another context.
func (l *AgentLoop) SetContextID(id string) {
	l.config.ContextID = id
	l.toolCtx.ContextID = id
}

// SetMessageCallback replaces the persistence callback (context switching).
func (l *AgentLoop) SetMessageCallback(cb MessageCallback) { l.config.OnMessage = cb }

// SetSubagentManager late-binds the manager so it can be constructed after the
// loop (it needs the loop's permission manager).
func (l *AgentLoop) SetSubagentManager(mgr *SubagentManager) {
	l.config.SubagentMgr = mgr
	l.toolCtx.SubagentMgr = mgr
}

// PermissionManager exposes the active manager for sharing with subagents.
func (l *AgentLoop) PermissionManager() *PermissionManager { return l.permissions }

// Clear resets the transcript to a fresh system-only state.
func (l *AgentLoop) Clear() {
	l.messages = []llm.Message{llm.SystemMessage(buildSystemPrompt(l.config, l.registry))}
	l.stats = SessionStats{ContextWindow: l.backend.ContextWindow()}
}

// addMessage appends to the transcript and fires the persistence callback.
// Callback failures are logged and swallowed.
func (l *AgentLoop) addMessage(msg llm.Message) {
	l.messages = append(l.messages, msg)
	if l.config.OnMessage != nil {
		if err := l.config.OnMessage(msg); err != nil {
			l.log.Debug("message persistence callback failed", zap.Error(err))
		}
	}
}

// Run processes one user prompt through the bounded loop: completion, tool
// dispatch, repeat until the model stops calling tools, the iteration limit
// is hit, or the user interrupts.
func (l *AgentLoop) Run(userPrompt string) RunResult {
	l.addMessage(llm.UserMessage(userPrompt))

	iterations := 0
	for {
		if l.interrupt.Load() {
			return RunResult{StopReason: StopUserCancelled, Iterations: iterations}
		}
		if iterations >= l.config.MaxIterations {
			return RunResult{StopReason: StopMaxIterations, Iterations: iterations}
		}

		completion, err := l.complete()
		if err != nil {
			// A cancelled completion returns without appending a partial
			// assistant message.
			if l.interrupt.Load() {
				return RunResult{StopReason: StopUserCancelled, Iterations: iterations}
			}
			l.log.Error("completion failed", zap.Error(err))
			return RunResult{StopReason: StopAgentError, Iterations: iterations}
		}

		l.stats.Update(completion.Timings)
		if warning := l.stats.ContextWarning(); warning != "" && l.config.OnNotice != nil {
			l.config.OnNotice(warning)
		}

		l.addMessage(completion.Message)

		if len(completion.Message.ToolCalls) == 0 {
			return RunResult{
				StopReason:    StopCompleted,
				FinalResponse: completion.Message.Content,
				Iterations:    iterations + 1,
			}
		}

		for _, call := range completion.Message.ToolCalls {
			l.addMessage(l.executeToolCall(call))
		}
		iterations++
	}
}

// complete requests one completion, wiring the interrupt flag into a
// cancellable context the backend must poll.
func (l *AgentLoop) complete() (*llm.Completion, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if l.interrupt.Load() {
					cancel()
					return
				}
			}
		}
	}()

	return l.backend.Complete(ctx, llm.Request{
		Messages: l.messages,
		Tools:    l.registry.Specs(l.config.AllowedTools),
	})
}

// isToolAllowed checks the whitelist. Empty whitelist means all tools.
func (l *AgentLoop) isToolAllowed(name string) bool {
	if len(l.config.AllowedTools) == 0 {
		return true
	}
	for _, allowed := range l.config.AllowedTools {
		if allowed == name {
			return true
		}
	}
	return false
}

// resourceSignature derives the permission cache key for a tool call: the
// first non-empty string argument among command, file_path, pattern and
// agent_name, otherwise the tool name itself.
func resourceSignature(name string, args map[string]interface{}) string {
	for _, key := range []string{"command", "file_path", "pattern", "agent_name"} {
		if v, ok := args[key].(string); ok && v != "" {
			return v
		}
	}
	return name
}

// executeToolCall runs a single tool call and converts the outcome into a
// tool-role message carrying the call's id. Errors become payloads the model
// can recover from; they never abort the remaining calls of the turn.
func (l *AgentLoop) executeToolCall(call llm.ToolCall) llm.Message {
	name := call.Function.Name

	if l.registry.Get(name) == nil {
		l.log.Debug("unknown tool requested", zap.String("tool", name))
		return llm.ToolResultMessage(call.ID, fmt.Sprintf("Error: unknown tool: %s", name))
	}

	args, err := call.DecodeArguments()
	if err != nil {
		return llm.ToolResultMessage(call.ID, fmt.Sprintf("Error: invalid tool arguments: %v", err))
	}

	if !l.isToolAllowed(name) || !l.permissions.Decide(name, resourceSignature(name, args)) {
		return llm.ToolResultMessage(call.ID, "Permission denied")
	}

	l.log.Debug("executing tool", zap.String("tool", name))
	result := l.registry.Execute(name, json.RawMessage(call.Function.Arguments), &l.toolCtx)

	if !result.Success {
		content := "Error: " + result.Error
		if result.Output != "" {
			content = result.Output + "\n\n" + content
		}
		return llm.ToolResultMessage(call.ID, content)
	}
	return llm.ToolResultMessage(call.ID, result.Output)
}
