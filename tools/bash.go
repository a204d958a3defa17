package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"

	"llamagent/agentloop"
)

// sensitiveEnvSuffixes are excluded from the command environment.
var sensitiveEnvSuffixes = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always included regardless of filtering.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true,
	"GOPATH": true, "GOROOT": true, "CARGO_HOME": true,
	"NVM_DIR": true, "RUSTUP_HOME": true, "PYENV_ROOT": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, suffix := range sensitiveEnvSuffixes {
		if strings.HasSuffix(upper, suffix) {
			return true
		}
	}
	return false
}

func filterEnvironment() []string {
	var filtered []string
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if safeEnvVars[parts[0]] || !isSensitiveEnvVar(parts[0]) {
			filtered = append(filtered, env)
		}
	}
	return filtered
}

// truncateBashOutput applies the character cap, then a head+tail line split.
func truncateBashOutput(output string) string {
	if len(output) > MaxBashOutputLength {
		half := MaxBashOutputLength / 2
		removed := len(output) - MaxBashOutputLength
		output = output[:half] +
			fmt.Sprintf("\n\n[Output truncated: %d characters removed from the middle. Re-run with a more targeted command to see specific parts.]\n\n", removed) +
			output[len(output)-half:]
	}

	lines := strings.Split(output, "\n")
	if len(lines) <= MaxBashOutputLines {
		return output
	}
	head := MaxBashOutputLines / 2
	tail := MaxBashOutputLines - head
	omitted := len(lines) - head - tail
	return strings.Join(lines[:head], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tail:], "\n")
}

func registerBash(reg *agentloop.ToolRegistry) {
	reg.Register(agentloop.ToolDefinition{
		Name:        "bash",
		Description: "Execute a shell command in the working directory. Returns combined stdout and stderr.",
		Signature:   "bash(command: string, timeout?: int)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command": map[string]interface{}{
					"type":        "string",
					"description": "The command to run.",
				},
				"timeout": map[string]interface{}{
					"type":        "integer",
					"description": "Override the default command timeout in milliseconds.",
				},
			},
			"required": []string{"command"},
		},
		Execute: func(raw json.RawMessage, tc *agentloop.ToolContext) agentloop.ToolResult {
			args, err := agentloop.ParseToolArguments(raw)
			if err != nil {
				return fail("%v", err)
			}
			command, okArg := agentloop.GetStringArg(args, "command")
			if !okArg || command == "" {
				return fail("command is required")
			}
			timeoutMS, _ := agentloop.GetIntArg(args, "timeout")
			if timeoutMS <= 0 {
				timeoutMS = tc.TimeoutMS
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMS)*time.Millisecond)
			defer cancel()

			// Cancel promptly when the user interrupts.
			if tc.Interrupt != nil {
				go func() {
					ticker := time.NewTicker(100 * time.Millisecond)
					defer ticker.Stop()
					for {
						select {
						case <-ctx.Done():
							return
						case <-ticker.C:
							if tc.Interrupt.Load() {
								cancel()
								return
							}
						}
					}
				}()
			}

			shell, shellArg := "/bin/bash", "-c"
			if runtime.GOOS == "windows" {
				shell, shellArg = "cmd.exe", "/c"
			}

			cmd := exec.CommandContext(ctx, shell, shellArg, command)
			cmd.Dir = tc.WorkingDir
			cmd.Env = filterEnvironment()
			// Own process group so the whole tree is killable.
			cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			runErr := cmd.Run()

			output := stdout.String()
			if stderr.Len() > 0 {
				if output != "" {
					output += "\n"
				}
				output += stderr.String()
			}
			output = truncateBashOutput(output)

			if ctx.Err() == context.DeadlineExceeded {
				if cmd.Process != nil {
					_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
				}
				return agentloop.ToolResult{
					Success: false,
					Output:  output,
					Error:   fmt.Sprintf("command timed out after %dms", timeoutMS),
				}
			}

			if runErr != nil {
				if exitErr, isExit := runErr.(*exec.ExitError); isExit {
					return agentloop.ToolResult{
						Success: false,
						Output:  output,
						Error:   fmt.Sprintf("command exited with code %d", exitErr.ExitCode()),
					}
				}
				return fail("command failed: %v", runErr)
			}

			return ok(output)
		},
	})
}
