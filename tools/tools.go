// Package tools registers the built-in tools on an agentloop.ToolRegistry:
// file access (read, write, edit), shell execution (bash), file search
// (glob), progressive disclosure (describe_tool), plan access (read_plan),
// and subagent spawning (spawn_agent).
package tools

import (
	"fmt"
	"path/filepath"

	"llamagent/agentloop"
)

// Output limits.
const (
	MaxBashOutputLength = 30000 // characters before truncation
	MaxBashOutputLines  = 50    // head + tail lines in truncated output
	DefaultReadLimit    = 2000  // lines per read
	MaxLineLength       = 2000  // characters per line in reads
	MaxGlobResults      = 100
)

// RegisterAll registers every built-in tool.
func RegisterAll(reg *agentloop.ToolRegistry) {
	registerRead(reg)
	registerWrite(reg)
	registerEdit(reg)
	registerBash(reg)
	registerGlob(reg)
	registerDescribeTool(reg)
	registerReadPlan(reg)
	registerSpawnAgent(reg)
}

// resolvePath resolves a possibly relative path against the working dir.
func resolvePath(path, workingDir string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(workingDir, path)
}

func fail(format string, args ...interface{}) agentloop.ToolResult {
	return agentloop.ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

func ok(output string) agentloop.ToolResult {
	return agentloop.ToolResult{Success: true, Output: output}
}
