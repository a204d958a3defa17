package agentloop

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"llamagent/llm"
)

// ToolContext is passed to every tool execution. Long-running tools must poll
// Interrupt and stop promptly when it is set.
type ToolContext struct {
	WorkingDir      string
	Interrupt       *atomic.Bool
	TimeoutMS       int
	ContextBasePath string // canonical data directory for context CRUD
	ContextID       string // current conversation, for context-scoped tools
	SubagentMgr     *SubagentManager
}

// ToolResult is the outcome of a tool execution.
//
// Contract: Success implies Error is empty; failure implies Error is
// non-empty (Output may still carry a partial result).
type ToolResult struct {
	Success bool
	Output  string
	Error   string
}

// ToolExecutor runs a tool against already-validated JSON arguments.
type ToolExecutor func(args json.RawMessage, tc *ToolContext) ToolResult

// ToolDefinition describes a tool for registration and for the LLM.
type ToolDefinition struct {
	Name        string
	Description string
	Signature   string                 // compact form: "bash(command: string, timeout?: int)"
	Parameters  map[string]interface{} // JSON schema
	Execute     ToolExecutor
}

// Spec converts the definition to the backend wire form.
func (d *ToolDefinition) Spec() llm.ToolSpec {
	return llm.ToolSpec{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
}

// ToolRegistry is the process-wide tool catalog. Registration happens during
// initialization; the registry is treated as immutable once the main loop
// begins.
type ToolRegistry struct {
	tools map[string]*ToolDefinition
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*ToolDefinition)}
}

// Register adds or replaces a tool. Names are unique within the registry.
func (r *ToolRegistry) Register(def ToolDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = &def
}

// Get returns a registered tool by name, or nil.
func (r *ToolRegistry) Get(name string) *ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// All returns every definition sorted by name, so prompt tool tables are
// deterministic.
func (r *ToolRegistry) All() []*ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]*ToolDefinition, 0, len(r.tools))
	for _, def := range r.tools {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Specs returns backend tool specs for the given whitelist. An empty
// whitelist means all tools.
func (r *ToolRegistry) Specs(allowed []string) []llm.ToolSpec {
	var specs []llm.ToolSpec
	if len(allowed) == 0 {
		for _, def := range r.All() {
			specs = append(specs, def.Spec())
		}
		return specs
	}
	for _, name := range allowed {
		if def := r.Get(name); def != nil {
			specs = append(specs, def.Spec())
		}
	}
	return specs
}

// Execute runs a tool by name. Absent names fail with an unknown-tool error in
// the result.
func (r *ToolRegistry) Execute(name string, args json.RawMessage, tc *ToolContext) ToolResult {
	def := r.Get(name)
	if def == nil {
		return ToolResult{Success: false, Error: fmt.Sprintf("%v: %s", ErrUnknownTool, name)}
	}
	return def.Execute(args, tc)
}

// ParseToolArguments unmarshals tool call arguments into a map for access.
func ParseToolArguments(raw json.RawMessage) (map[string]interface{}, error) {
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}

// GetStringArg extracts a string argument from parsed tool arguments.
func GetStringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetIntArg extracts an integer argument from parsed tool arguments.
func GetIntArg(args map[string]interface{}, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// GetBoolArg extracts a boolean argument from parsed tool arguments.
func GetBoolArg(args map[string]interface{}, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
