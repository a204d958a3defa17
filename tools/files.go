package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"llamagent/agentloop"
)

func registerRead(reg *agentloop.ToolRegistry) {
	reg.Register(agentloop.ToolDefinition{
		Name:        "read",
		Description: "Read a file from the filesystem. Returns line-numbered content.",
		Signature:   "read(file_path: string, offset?: int, limit?: int)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file to read (absolute or relative to the working directory).",
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "1-based line number to start reading from.",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of lines to read. Default: 2000.",
				},
			},
			"required": []string{"file_path"},
		},
		Execute: func(raw json.RawMessage, tc *agentloop.ToolContext) agentloop.ToolResult {
			args, err := agentloop.ParseToolArguments(raw)
			if err != nil {
				return fail("%v", err)
			}
			filePath, okArg := agentloop.GetStringArg(args, "file_path")
			if !okArg || filePath == "" {
				return fail("file_path is required")
			}
			offset, _ := agentloop.GetIntArg(args, "offset")
			limit, _ := agentloop.GetIntArg(args, "limit")
			if limit <= 0 {
				limit = DefaultReadLimit
			}

			data, err := os.ReadFile(resolvePath(filePath, tc.WorkingDir))
			if err != nil {
				return fail("read failed: %v", err)
			}

			lines := strings.Split(string(data), "\n")
			start := 0
			if offset > 0 {
				start = offset - 1
			}
			if start >= len(lines) {
				return ok("")
			}
			end := len(lines)
			if start+limit < end {
				end = start + limit
			}

			var sb strings.Builder
			for i := start; i < end; i++ {
				line := lines[i]
				if len(line) > MaxLineLength {
					line = line[:MaxLineLength] + "..."
				}
				fmt.Fprintf(&sb, "%d | %s\n", i+1, line)
			}
			return ok(sb.String())
		},
	})
}

func registerWrite(reg *agentloop.ToolRegistry) {
	reg.Register(agentloop.ToolDefinition{
		Name:        "write",
		Description: "Write content to a file. Creates the file and parent directories if needed.",
		Signature:   "write(file_path: string, content: string)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to write to.",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "The full file content to write.",
				},
			},
			"required": []string{"file_path", "content"},
		},
		Execute: func(raw json.RawMessage, tc *agentloop.ToolContext) agentloop.ToolResult {
			args, err := agentloop.ParseToolArguments(raw)
			if err != nil {
				return fail("%v", err)
			}
			filePath, okArg := agentloop.GetStringArg(args, "file_path")
			if !okArg || filePath == "" {
				return fail("file_path is required")
			}
			content, okArg := agentloop.GetStringArg(args, "content")
			if !okArg {
				return fail("content is required")
			}

			resolved := resolvePath(filePath, tc.WorkingDir)
			if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
				return fail("write failed: %v", err)
			}
			if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
				return fail("write failed: %v", err)
			}
			return ok(fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), filePath))
		},
	})
}

func registerEdit(reg *agentloop.ToolRegistry) {
	reg.Register(agentloop.ToolDefinition{
		Name:        "edit",
		Description: "Replace an exact string occurrence in a file. The old_string must be unique unless replace_all is true.",
		Signature:   "edit(file_path: string, old_string: string, new_string: string, replace_all?: bool)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file to edit.",
				},
				"old_string": map[string]interface{}{
					"type":        "string",
					"description": "Exact text to find in the file.",
				},
				"new_string": map[string]interface{}{
					"type":        "string",
					"description": "Replacement text.",
				},
				"replace_all": map[string]interface{}{
					"type":        "boolean",
					"description": "Replace all occurrences. Default: false.",
				},
			},
			"required": []string{"file_path", "old_string", "new_string"},
		},
		Execute: func(raw json.RawMessage, tc *agentloop.ToolContext) agentloop.ToolResult {
			args, err := agentloop.ParseToolArguments(raw)
			if err != nil {
				return fail("%v", err)
			}
			filePath, okArg := agentloop.GetStringArg(args, "file_path")
			if !okArg || filePath == "" {
				return fail("file_path is required")
			}
			oldString, okArg := agentloop.GetStringArg(args, "old_string")
			if !okArg || oldString == "" {
				return fail("old_string is required")
			}
			newString, _ := agentloop.GetStringArg(args, "new_string")
			replaceAll, _ := agentloop.GetBoolArg(args, "replace_all")

			resolved := resolvePath(filePath, tc.WorkingDir)
			data, err := os.ReadFile(resolved)
			if err != nil {
				return fail("edit failed: %v", err)
			}
			content := string(data)

			count := strings.Count(content, oldString)
			if count == 0 {
				return fail("old_string not found in %s", filePath)
			}
			if count > 1 && !replaceAll {
				return fail("old_string found %d times in %s. Provide more context to make it unique, or set replace_all=true", count, filePath)
			}

			var updated string
			replacements := 1
			if replaceAll {
				updated = strings.ReplaceAll(content, oldString, newString)
				replacements = count
			} else {
				updated = strings.Replace(content, oldString, newString, 1)
			}

			if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
				return fail("edit failed: %v", err)
			}
			return ok(fmt.Sprintf("Successfully replaced %d occurrence(s) in %s", replacements, filePath))
		},
	})
}
