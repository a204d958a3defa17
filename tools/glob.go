package tools

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"llamagent/agentloop"
)

func registerGlob(reg *agentloop.ToolRegistry) {
	reg.Register(agentloop.ToolDefinition{
		Name:        "glob",
		Description: "Find files matching a glob pattern, ** supported. Returns relative paths sorted alphabetically.",
		Signature:   "glob(pattern: string, path?: string)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"pattern": map[string]interface{}{
					"type":        "string",
					"description": "Glob pattern (e.g., \"**/*.go\").",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Base directory. Default: working directory.",
				},
			},
			"required": []string{"pattern"},
		},
		Execute: func(raw json.RawMessage, tc *agentloop.ToolContext) agentloop.ToolResult {
			args, err := agentloop.ParseToolArguments(raw)
			if err != nil {
				return fail("%v", err)
			}
			pattern, okArg := agentloop.GetStringArg(args, "pattern")
			if !okArg || pattern == "" {
				return fail("pattern is required")
			}
			base, _ := agentloop.GetStringArg(args, "path")
			if base == "" {
				base = tc.WorkingDir
			} else {
				base = resolvePath(base, tc.WorkingDir)
			}

			matches, err := doublestar.Glob(os.DirFS(base), pattern)
			if err != nil {
				return fail("glob failed: %v", err)
			}
			if len(matches) == 0 {
				return ok("No files matched the pattern.")
			}

			sort.Strings(matches)
			truncated := false
			if len(matches) > MaxGlobResults {
				matches = matches[:MaxGlobResults]
				truncated = true
			}

			output := strings.Join(matches, "\n")
			if truncated {
				output += "\n[Result list truncated at 100 entries. Narrow the pattern to see more.]"
			}
			return ok(output)
		},
	})
}
