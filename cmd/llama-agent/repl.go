package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"llamagent/agentloop"

	"github.com/mattn/go-isatty"
)

// readStdinPrompt consumes all of piped stdin as the initial prompt.
func readStdinPrompt() string {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(data), "\r\n")
}

func printHelp() {
	fmt.Println("commands:")
	fmt.Println("  /exit         exit the agent")
	fmt.Println("  /clear        clear and start new conversation")
	fmt.Println("  /list         list saved conversations")
	fmt.Println("  /switch <id>  switch to a saved conversation")
	fmt.Println("  /delete <id>  delete a saved conversation")
	fmt.Println("  /compact      compact current context with summary")
	fmt.Println("  /plan <task>  spawn planning-agent to create a plan")
	fmt.Println("  /stats        show token usage statistics")
	fmt.Println("  /tools        list available tools")
	fmt.Println("  /skills       list available skills")
	fmt.Println("  /subagents    list available subagents")
	fmt.Println("  Ctrl+C        abort generation")
	fmt.Println()
}

// runREPL drives the main loop: read input, dispatch commands, run the agent,
// persist the transcript after each turn.
func runREPL(ctx *commandContext, d *dispatcher, flagPrompt string) error {
	singleTurn := false
	initialPrompt := flagPrompt

	// Piped stdin becomes the initial prompt; interactive input would spin
	// at EOF, so force single-turn mode.
	stdinIsTerminal := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	if initialPrompt == "" && !stdinIsTerminal {
		initialPrompt = readStdinPrompt()
		singleTurn = true
	}
	if flagPrompt != "" && !stdinIsTerminal {
		singleTurn = true
	}

	if initialPrompt == "" || !singleTurn {
		printHelp()
	}

	reader := bufio.NewReader(os.Stdin)
	firstTurn := initialPrompt != ""

	for {
		var buffer string

		if firstTurn {
			buffer = initialPrompt
			firstTurn = false
			fmt.Printf("\n› %s\n", buffer)
		} else {
			fmt.Print("\n› ")
			line, err := reader.ReadString('\n')
			if err != nil {
				break
			}
			buffer = strings.TrimSpace(line)

			if interrupt.Load() {
				interrupt.Store(false)
				break
			}
			if buffer == "" {
				continue
			}

			switch d.dispatch(buffer, ctx) {
			case cmdExit:
				fmt.Println("\nExiting...")
				return nil
			case cmdContinue:
				continue
			}
		}

		fmt.Println()
		result := ctx.loop.Run(buffer)
		if result.FinalResponse != "" {
			fmt.Println(result.FinalResponse)
		}

		// Batch save after each turn instead of per-message.
		if err := ctx.store.SaveMessages(ctx.currentContextID, ctx.loop.Messages()); err != nil {
			ctx.log.Warn("failed to persist conversation", zap.Error(err))
		}

		fmt.Println()
		switch result.StopReason {
		case agentloop.StopCompleted:
			fmt.Printf("[Completed in %d iteration(s)]\n", result.Iterations)
		case agentloop.StopMaxIterations:
			fmt.Printf("[Stopped: max iterations reached (%d)]\n", result.Iterations)
		case agentloop.StopUserCancelled:
			fmt.Println("[Cancelled by user]")
			interrupt.Store(false)
		case agentloop.StopAgentError:
			fmt.Println("[Error occurred]")
		}

		if singleTurn {
			break
		}
	}

	fmt.Println("\nExiting...")
	return nil
}
