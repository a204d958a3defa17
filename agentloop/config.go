package agentloop

import (
	"errors"

	"llamagent/llm"
)

// Centralized limits for the agent core.
const (
	DefaultMaxIterations       = 50
	MinMaxIterations           = 1
	MaxMaxIterations           = 1000
	SubagentMaxIterationsLimit = 100

	DefaultToolTimeoutMS = 120000 // 2 min per tool call
	CompactToolTimeoutMS = 60000  // compaction sub-run

	MaxSpawnDepth = 3
)

// Sentinel errors surfaced by the core.
var (
	ErrUnknownTool        = errors.New("unknown tool")
	ErrUnknownAgent       = errors.New("unknown agent")
	ErrSpawnDepthExceeded = errors.New("maximum spawn depth exceeded")
	ErrInvalidWorkingDir  = errors.New("working_dir does not exist or is not a directory")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// MessageCallback is invoked after each in-memory append. Errors are logged
// and swallowed so disk problems never block conversation progress.
type MessageCallback func(msg llm.Message) error

// NoticeCallback receives user-facing warnings (context usage thresholds).
type NoticeCallback func(notice string)

// AgentConfig holds construction-time configuration for an AgentLoop. It is
// immutable after New; the only exceptions are the context id and the message
// callback, which change on context switches.
//
// The minimum required configuration is WorkingDir. Everything else has a
// usable default.
type AgentConfig struct {
	WorkingDir    string // base directory for file operations
	MaxIterations int    // completion rounds per Run, clamped to [1, 1000]
	ToolTimeoutMS int    // per tool call
	Verbose       bool
	YoloMode      bool // skip all permission prompts

	// Prompt sections generated by the host (skills, available agents).
	SkillsPromptSection string
	AgentsPromptSection string

	// Persistence. OnMessage fires after each append; ContextBasePath is the
	// canonical data directory propagated to tools via ToolContext.
	ContextID       string
	ContextBasePath string
	OnMessage       MessageCallback

	// Permission inheritance for subagents. When set, the loop shares the
	// parent's decision cache instead of owning one.
	ParentPermissions *PermissionManager

	// Tool filtering. Empty means all registered tools are allowed.
	AllowedTools []string

	// Subagent manager handle for the spawn_agent tool. Late-bound via
	// SetSubagentManager when the manager needs the loop's permission state.
	SubagentMgr *SubagentManager

	// Custom system prompt override for specialized agents. When non-empty it
	// replaces the default prompt entirely; the tool table is still appended
	// unless SkipToolTable is set.
	CustomSystemPrompt string
	SkipToolTable      bool

	OnNotice NoticeCallback
}

// DefaultAgentConfig returns a config with the standard limits applied.
func DefaultAgentConfig(workingDir string) AgentConfig {
	return AgentConfig{
		WorkingDir:    workingDir,
		MaxIterations: DefaultMaxIterations,
		ToolTimeoutMS: DefaultToolTimeoutMS,
	}
}

// ClampIterations clamps n into the [MinMaxIterations, MaxMaxIterations]
// range.
func ClampIterations(n int) int {
	if n < MinMaxIterations {
		return MinMaxIterations
	}
	if n > MaxMaxIterations {
		return MaxMaxIterations
	}
	return n
}
