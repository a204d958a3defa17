// Command llama-agent is an interactive LLM coding agent: a bounded
// tool-using reasoning loop with subagent spawning, persistent conversation
// contexts, and an interactive planning workflow.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"llamagent/agentdef"
	"llamagent/agentloop"
	"llamagent/contextstore"
	"llamagent/llm"
	"llamagent/skills"
	"llamagent/tools"
)

const logo = `
    ____                                                   __
   / / /___ _____ ___  ____ _      ____ _____ ____  ____  / /_
  / / / __ '/ __ '__ \/ __ '/_____/ __ '/ __ '/ _ \/ __ \/ __/
 / / / /_/ / / / / / / /_/ /_____/ /_/ / /_/ /  __/ / / / /_
/_/_/\__,_/_/ /_/ /_/\__,_/      \__,_/\__, /\___/_/ /_/\__/
                                      /____/
`

var interrupt atomic.Bool

// configDir returns the user config directory for llama-agent.
func configDir() string {
	if runtime.GOOS == "windows" {
		if appdata := os.Getenv("APPDATA"); appdata != "" {
			return filepath.Join(appdata, "llama-agent")
		}
		return ""
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".llama-agent")
	}
	return ""
}

// installSignalHandler sets the interrupt flag on the first SIGINT/SIGTERM;
// a second signal while one is still pending aborts with code 130.
func installSignalHandler() {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range ch {
			if interrupt.Load() {
				fmt.Println()
				os.Exit(130)
			}
			interrupt.Store(true)
		}
	}()
}

type cliOptions struct {
	yolo          bool
	noSkills      bool
	skillsPaths   []string
	maxIterations int
	dataDir       string
	workingDir    string
	prompt        string
	provider      string
	model         string
	apiKey        string
	contextWindow int
	verbose       bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:           "llama-agent",
		Short:         "An interactive LLM coding agent with subagents and planning",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.yolo, "yolo", false, "skip all permission prompts (dangerous)")
	flags.BoolVar(&opts.noSkills, "no-skills", false, "disable skill discovery")
	flags.StringArrayVar(&opts.skillsPaths, "skills-path", nil, "additional skills search path (repeatable)")
	flags.IntVarP(&opts.maxIterations, "max-iterations", "m", agentloop.DefaultMaxIterations, "max tool execution rounds per prompt")
	flags.StringVarP(&opts.dataDir, "data-dir", "d", "", "data directory (default <working-dir>/.llama-agent)")
	flags.StringVarP(&opts.workingDir, "working-dir", "C", "", "working directory (must exist)")
	flags.StringVarP(&opts.prompt, "prompt", "p", "", "initial prompt (implies single turn with piped stdin)")
	flags.StringVar(&opts.provider, "provider", "openai", "LLM provider (openai, anthropic)")
	flags.StringVar(&opts.model, "model", "", "model identifier")
	flags.StringVar(&opts.apiKey, "api-key", "", "provider API key (default from environment)")
	flags.IntVar(&opts.contextWindow, "context-window", 128000, "context window in tokens")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	return cmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stderr"}
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	return config.Build()
}

func runAgent(opts *cliOptions) error {
	logger, err := newLogger(opts.verbose)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	installSignalHandler()

	// Resolve the working directory.
	workingDir := opts.workingDir
	if workingDir == "" {
		workingDir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("cannot determine working directory: %w", err)
		}
	} else {
		if !filepath.IsAbs(workingDir) {
			cwd, _ := os.Getwd()
			workingDir = filepath.Join(cwd, workingDir)
		}
		resolved, err := filepath.EvalSymlinks(workingDir)
		if err != nil {
			return fmt.Errorf("--working-dir path does not exist or is not a directory: %s", opts.workingDir)
		}
		info, err := os.Stat(resolved)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("--working-dir path does not exist or is not a directory: %s", opts.workingDir)
		}
		workingDir = resolved
	}

	// Backend.
	backendOpts := []llm.GollmOption{llm.WithContextWindow(opts.contextWindow)}
	if opts.model != "" {
		backendOpts = append(backendOpts, llm.WithModel(opts.model))
	}
	if opts.apiKey != "" {
		backendOpts = append(backendOpts, llm.WithAPIKey(opts.apiKey))
	}
	backend, err := llm.NewGollmBackend(opts.provider, backendOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM backend: %w", err)
	}

	// Tool registry.
	registry := agentloop.NewToolRegistry()
	tools.RegisterAll(registry)

	// Data directory and context store.
	dataDir := opts.dataDir
	if dataDir == "" {
		dataDir = filepath.Join(workingDir, ".llama-agent")
	}
	store, err := contextstore.NewStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize context store: %w", err)
	}
	contextID, err := store.Create()
	if err != nil {
		return fmt.Errorf("failed to create context: %w", err)
	}

	// Skills.
	skillsMgr := skills.NewManager()
	skillsCount := 0
	if !opts.noSkills {
		paths := []string{
			filepath.Join(workingDir, ".llama-agent", "skills"),
		}
		if dir := configDir(); dir != "" {
			paths = append(paths, filepath.Join(dir, "skills"))
		}
		paths = append(paths, opts.skillsPaths...)
		skillsCount = skillsMgr.Discover(paths)
	}

	// Agent definitions: embedded first, then disk with precedence.
	agentReg := agentdef.NewRegistry()
	agentReg.RegisterEmbedded()
	agentPaths := []string{filepath.Join(dataDir, "agents")}
	if projectAgents := filepath.Join(workingDir, ".llama-agent", "agents"); projectAgents != agentPaths[0] {
		agentPaths = append(agentPaths, projectAgents)
	}
	if dir := configDir(); dir != "" {
		agentPaths = append(agentPaths, filepath.Join(dir, "agents"))
	}
	agentCount := agentReg.Discover(agentPaths)

	// Agent loop.
	cfg := agentloop.AgentConfig{
		WorkingDir:          workingDir,
		MaxIterations:       agentloop.ClampIterations(opts.maxIterations),
		ToolTimeoutMS:       agentloop.DefaultToolTimeoutMS,
		Verbose:             opts.verbose,
		YoloMode:            opts.yolo,
		SkillsPromptSection: skillsMgr.PromptSection(),
		AgentsPromptSection: agentReg.PromptSection(),
		ContextID:           contextID,
		ContextBasePath:     dataDir,
		OnNotice: func(notice string) {
			fmt.Printf("\n[%s]\n", notice)
		},
	}
	loop := agentloop.New(backend, registry, cfg, &interrupt, logger)

	// Subagent manager shares the loop's permission state; the loop gets the
	// manager late-bound for the spawn_agent tool.
	subagentMgr := agentloop.NewSubagentManager(backend, registry, agentReg, store, workingDir, loop.PermissionManager(), logger)
	loop.SetSubagentManager(subagentMgr)

	// Startup banner.
	fmt.Print(logo)
	fmt.Printf("working dir: %s\n", workingDir)
	fmt.Printf("data dir   : %s\n", dataDir)
	fmt.Printf("provider   : %s\n", opts.provider)
	if opts.yolo {
		fmt.Println("mode       : YOLO (all permissions auto-approved)")
	}
	if skillsCount > 0 {
		fmt.Printf("skills     : %d\n", skillsCount)
	}
	if agentCount > 0 {
		fmt.Printf("subagents  : %d\n", agentCount)
	}
	fmt.Printf("context    : %s\n\n", contextID[:8])

	ctx := &commandContext{
		loop:             loop,
		store:            store,
		skillsMgr:        skillsMgr,
		agentReg:         agentReg,
		subagentMgr:      subagentMgr,
		backend:          backend,
		registry:         registry,
		workingDir:       workingDir,
		currentContextID: contextID,
		interrupt:        &interrupt,
		log:              logger,
	}

	d := newDispatcher()
	registerAllCommands(d)

	return runREPL(ctx, d, opts.prompt)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "llama-agent: %v\n", err)
		os.Exit(1)
	}
}
