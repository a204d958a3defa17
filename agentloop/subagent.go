package agentloop

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"llamagent/agentdef"
	"llamagent/contextstore"
	"llamagent/llm"
)

// SubagentRequest describes one spawn.
type SubagentRequest struct {
	AgentName     string
	Task          string
	Context       map[string]interface{} // extra context, rendered as JSON in the prompt
	MaxIterations int                    // 0 = use the agent definition's limit
	Persist       bool                   // save the child transcript as its own context
	SpawnDepth    int                    // caller's depth; 0 when the main loop spawns
	WorkingDir    string                 // override, absolute or relative to the manager's
}

// SubagentResult is the outcome of a spawn.
type SubagentResult struct {
	Success    bool
	Output     string // child's final response
	Artifacts  map[string]interface{}
	Iterations int
	Stats      SessionStats
	Error      string

	// Tracked side effects for parent context awareness.
	FilesModified []string
	CommandsRun   []string
}

// SubagentManager spawns child agent loops with isolated conversation context
// over the shared backend. Depth is tracked on a stack so nested spawns under
// the cap still work; the permission manager is shared with the parent so
// decisions apply transitively.
type SubagentManager struct {
	backend     llm.Backend
	registry    *ToolRegistry
	agents      *agentdef.Registry
	store       *contextstore.Store
	workingDir  string
	permissions *PermissionManager
	log         *zap.Logger

	depthStack   []int
	lastMessages []llm.Message
}

// NewSubagentManager creates a manager. permissions may be nil and set later
// via SetPermissionManager once the main loop exists.
func NewSubagentManager(backend llm.Backend, registry *ToolRegistry, agents *agentdef.Registry, store *contextstore.Store, workingDir string, permissions *PermissionManager, logger *zap.Logger) *SubagentManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubagentManager{
		backend:     backend,
		registry:    registry,
		agents:      agents,
		store:       store,
		workingDir:  workingDir,
		permissions: permissions,
		log:         logger,
	}
}

// SetPermissionManager late-binds the shared permission state.
func (m *SubagentManager) SetPermissionManager(p *PermissionManager) { m.permissions = p }

// CurrentSpawnDepth returns the depth of the innermost active spawn, 0 when
// none is running.
func (m *SubagentManager) CurrentSpawnDepth() int {
	if len(m.depthStack) == 0 {
		return 0
	}
	return m.depthStack[len(m.depthStack)-1]
}

// LastMessages returns the most recent child transcript (for debugging).
func (m *SubagentManager) LastMessages() []llm.Message { return m.lastMessages }

// GenerateSystemPrompt builds the per-agent prompt (exported so the planning
// workflow can construct a persistent agent loop directly).
func (m *SubagentManager) GenerateSystemPrompt(def *agentdef.Definition) string {
	return GenerateAgentSystemPrompt(def, m.registry)
}

// resolveWorkingDir canonicalizes a spawn working dir against the manager's.
// Returns "" when the path does not exist or is not a directory.
func (m *SubagentManager) resolveWorkingDir(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.workingDir, path)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return ""
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return ""
	}
	return resolved
}

// Spawn runs a child agent loop to completion and extracts its result. The
// backend slot is cleared before and after the run so neither side observes
// the other's tokens; the parent reprocesses its transcript on its next
// completion.
func (m *SubagentManager) Spawn(req SubagentRequest, _ []llm.Message, interrupt *atomic.Bool) SubagentResult {
	var result SubagentResult

	if req.SpawnDepth >= MaxSpawnDepth {
		result.Error = fmt.Sprintf("Maximum spawn depth (%d) exceeded. Cannot spawn more subagents.", MaxSpawnDepth)
		return result
	}

	def := m.agents.Get(req.AgentName)
	if def == nil {
		result.Error = "Unknown agent: " + req.AgentName
		return result
	}

	subWorkingDir := m.workingDir
	if req.WorkingDir != "" {
		subWorkingDir = m.resolveWorkingDir(req.WorkingDir)
		if subWorkingDir == "" {
			result.Error = fmt.Sprintf("%v: %s", ErrInvalidWorkingDir, req.WorkingDir)
			return result
		}
	}

	maxIterations := def.MaxIterations
	if req.MaxIterations > 0 {
		maxIterations = req.MaxIterations
	}
	if maxIterations > SubagentMaxIterationsLimit {
		maxIterations = SubagentMaxIterationsLimit
	}

	m.log.Debug("spawning subagent",
		zap.String("agent", req.AgentName),
		zap.Int("depth", req.SpawnDepth+1),
		zap.Int("max_iterations", maxIterations))

	// Context isolation: the slot is cleared rather than saved and restored.
	// The parent's transcript is its source of truth.
	m.backend.ClearSlot()
	m.depthStack = append(m.depthStack, req.SpawnDepth+1)

	cfg := AgentConfig{
		WorkingDir:        subWorkingDir,
		MaxIterations:     maxIterations,
		ToolTimeoutMS:     DefaultToolTimeoutMS,
		ParentPermissions: m.permissions,
		SubagentMgr:       m,
		AllowedTools:      def.AllowedTools,
		ContextBasePath:   m.store.BasePath(),
	}

	if req.Persist {
		if id, err := m.store.Create(); err == nil {
			cfg.ContextID = id
			cfg.OnMessage = func(msg llm.Message) error {
				return m.store.AppendMessage(id, msg)
			}
		}
	}

	prompt := m.GenerateSystemPrompt(def) + "\n\n# Task\n\n" + req.Task
	if len(req.Context) > 0 {
		pretty, err := json.MarshalIndent(req.Context, "", "  ")
		if err == nil {
			prompt += "\n\n## Context\n\n```json\n" + string(pretty) + "\n```"
		}
	}

	child := New(m.backend, m.registry, cfg, interrupt, m.log)
	loopResult := child.Run(prompt)

	result.Success = loopResult.StopReason == StopCompleted
	result.Output = loopResult.FinalResponse
	result.Iterations = loopResult.Iterations
	result.Stats = *child.Stats()
	m.lastMessages = child.Messages()

	result.Artifacts = extractArtifacts(m.lastMessages)
	result.FilesModified, result.CommandsRun = ExtractModifications(m.lastMessages)

	if !result.Success {
		switch loopResult.StopReason {
		case StopMaxIterations:
			result.Error = "Subagent reached max iterations"
		case StopUserCancelled:
			result.Error = "Subagent was cancelled"
		case StopAgentError:
			result.Error = "Subagent encountered an error"
		}
	}

	if len(m.depthStack) > 0 {
		m.depthStack = m.depthStack[:len(m.depthStack)-1]
	}
	m.backend.ClearSlot()

	return result
}

// extractArtifacts scans the child's assistant messages for fenced json
// blocks and parses any that are not planning Q&A payloads.
func extractArtifacts(messages []llm.Message) map[string]interface{} {
	artifacts := make(map[string]interface{})

	for _, msg := range messages {
		if msg.Role != llm.RoleAssistant {
			continue
		}
		content := msg.Content
		start := strings.Index(content, "```json")
		if start < 0 {
			continue
		}
		jsonStart := start + len("```json")
		if jsonStart < len(content) && content[jsonStart] == '\n' {
			jsonStart++
		}
		jsonEnd := strings.Index(content[jsonStart:], "```")
		if jsonEnd < 0 {
			continue
		}

		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(content[jsonStart:jsonStart+jsonEnd]), &parsed); err != nil {
			continue
		}
		// Q&A blocks from planning are not artifacts.
		if _, isQA := parsed["questions"]; isQA {
			continue
		}
		artifacts["data"] = parsed
	}

	if len(artifacts) == 0 {
		return nil
	}
	return artifacts
}

// ExtractModifications derives files written and commands run from a
// transcript's assistant tool calls. spawn_agent results are unioned in
// recursively through their reported JSON. Files are de-duplicated preserving
// first-seen order; commands over 200 characters are truncated.
func ExtractModifications(messages []llm.Message) (filesModified, commandsRun []string) {
	seen := make(map[string]bool)
	addFile := func(path string) {
		if path != "" && !seen[path] {
			seen[path] = true
			filesModified = append(filesModified, path)
		}
	}

	for _, msg := range messages {
		if msg.Role != llm.RoleAssistant {
			continue
		}
		for _, call := range msg.ToolCalls {
			args, err := call.DecodeArguments()
			if err != nil {
				continue
			}
			switch call.Function.Name {
			case "write", "edit":
				if path, ok := GetStringArg(args, "file_path"); ok {
					addFile(path)
				}
			case "bash":
				if cmd, ok := GetStringArg(args, "command"); ok && cmd != "" {
					if len(cmd) > 200 {
						cmd = cmd[:197] + "..."
					}
					commandsRun = append(commandsRun, cmd)
				}
			case "spawn_agent":
				// The nested result JSON lives in the matching tool message.
				for _, resultMsg := range messages {
					if resultMsg.Role != llm.RoleTool || resultMsg.ToolCallID != call.ID {
						continue
					}
					var nested struct {
						FilesModified []string `json:"files_modified"`
						CommandsRun   []string `json:"commands_run"`
					}
					if err := json.Unmarshal([]byte(resultMsg.Content), &nested); err == nil {
						for _, f := range nested.FilesModified {
							addFile(f)
						}
						commandsRun = append(commandsRun, nested.CommandsRun...)
					}
					break
				}
			}
		}
	}
	return filesModified, commandsRun
}
