package planning

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"llamagent/agentdef"
	"llamagent/agentloop"
	"llamagent/contextstore"
	"llamagent/llm"
)

// QAResult is the outcome of the interactive Q&A UI.
type QAResult int

const (
	QACompleted QAResult = iota
	QAAborted
	QAInterrupted
)

// PlannerLoop is the slice of agentloop.AgentLoop the workflow drives. The
// planning agent is constructed directly (not via spawn) so its transcript
// survives multiple turns of the refinement loop.
type PlannerLoop interface {
	Run(prompt string) agentloop.RunResult
	Stats() *agentloop.SessionStats
}

// QAFunc runs the interactive Q&A UI over a session.
type QAFunc func(session *QASession, interrupt *atomic.Bool) QAResult

// ApproveFunc prompts the user y/n.
type ApproveFunc func(prompt string) bool

// Workflow orchestrates the /plan command: explorer spawn, persistent
// planning agent, interactive Q&A refinement, and approval. UI interactions
// are injected so the workflow itself stays testable.
type Workflow struct {
	Store       *contextstore.Store
	Agents      *agentdef.Registry
	Subagents   *agentloop.SubagentManager
	Backend     llm.Backend
	Registry    *agentloop.ToolRegistry
	Permissions *agentloop.PermissionManager
	WorkingDir  string
	Interrupt   *atomic.Bool
	Out         io.Writer
	Log         *zap.Logger

	RunQA         QAFunc
	Approve       ApproveFunc
	ConfirmResume func(state State) bool

	// NewPlannerLoop overrides planner construction (tests). Defaults to a
	// real agentloop.AgentLoop.
	NewPlannerLoop func(cfg agentloop.AgentConfig) PlannerLoop

	// planner persists across Run calls within a process so a resumed Q&A
	// continues the same agent instance with its context intact.
	planner PlannerLoop
}

func (w *Workflow) logf(format string, args ...interface{}) {
	if w.Out != nil {
		fmt.Fprintf(w.Out, format, args...)
	}
}

func (w *Workflow) log() *zap.Logger {
	if w.Log == nil {
		return zap.NewNop()
	}
	return w.Log
}

// buildExplorationPrompt builds the task-aware prompt for the explorer agent.
func buildExplorationPrompt(task string) string {
	return "## User Task\n\n" + task + "\n\n" +
		"## Your Mission\n\n" +
		"Explore the codebase to understand what exists and how the user's task should integrate.\n\n" +
		"## Deliverables\n\n" +
		"1. **Relevant Files**: List files directly related to the task with brief descriptions\n" +
		"2. **Architecture Overview**: How does this codebase organize code?\n" +
		"3. **Integration Points**: Where should the new functionality hook in?\n" +
		"4. **Existing Patterns**: What conventions/patterns are already in use?\n" +
		"5. **Dependencies**: What systems/modules would this task touch?\n\n" +
		"Use glob for structure, read for content. Be thorough - your findings will be used to create an implementation plan."
}

// buildPlanningPrompt is the planning agent's first user message: the task
// plus exploration findings.
func buildPlanningPrompt(task, findings string) string {
	return "## User Task\n\n" + task + "\n\n" +
		"## Codebase Exploration Results\n\n" + findings + "\n\n" +
		"## Your Mission\n\n" +
		"Create a comprehensive implementation plan based on the exploration findings above.\n\n" +
		"You do NOT need to explore the codebase - findings are provided above.\n" +
		"Focus entirely on strategic planning and design decisions.\n\n" +
		"## Required Output\n\n" +
		"1. A markdown implementation plan with phases, files to modify, and steps\n" +
		"2. **5-7 design decision questions** to align with user intent\n\n" +
		"Output questions in JSON format:\n" +
		"```json\n" +
		"{\n" +
		"  \"questions\": [\n" +
		"    {\n" +
		"      \"id\": 1,\n" +
		"      \"text\": \"Which approach do you prefer?\",\n" +
		"      \"options\": [\"Option A\", \"Option B\", \"Option C\"]\n" +
		"    }\n" +
		"  ]\n" +
		"}\n" +
		"```\n\n" +
		"Remember: Ask many thoughtful questions to ensure alignment with user intent."
}

// buildContinuationPrompt carries just the answers back to the warm agent.
func buildContinuationPrompt(qa QASession) string {
	return FormatAnswers(qa) +
		"\n\nPlease refine the plan based on these decisions. " +
		"If any critical design decisions remain unclear, generate follow-up questions."
}

// newPlanner builds the persistent planning agent loop.
func (w *Workflow) newPlanner(def *agentdef.Definition) PlannerLoop {
	cfg := agentloop.AgentConfig{
		WorkingDir:         w.WorkingDir,
		MaxIterations:      def.MaxIterations,
		ToolTimeoutMS:      agentloop.DefaultToolTimeoutMS,
		ParentPermissions:  w.Permissions,
		SubagentMgr:        w.Subagents,
		ContextBasePath:    w.Store.BasePath(),
		AllowedTools:       def.AllowedTools,
		CustomSystemPrompt: w.Subagents.GenerateSystemPrompt(def),
	}
	if w.NewPlannerLoop != nil {
		return w.NewPlannerLoop(cfg)
	}
	return agentloop.New(w.Backend, w.Registry, cfg, w.Interrupt, w.Log)
}

// Run handles /plan: resume an active saved session when the user wants to,
// otherwise start fresh with the given task.
func (w *Workflow) Run(task, contextID string) error {
	if w.Agents.Get("planning-agent") == nil {
		return fmt.Errorf("planning-agent not found")
	}

	psm := NewStateMachine(w.Store)

	if psm.HasSavedSession(contextID) && psm.Load(contextID) && psm.IsActive() {
		w.logf("Found existing planning session (state: %s).\n", psm.CurrentState())
		if w.ConfirmResume != nil && w.ConfirmResume(psm.CurrentState()) {
			return w.resume(psm)
		}
		w.logf("Starting fresh planning session...\n")
		psm.session = Session{State: StateIdle, ContextID: contextID}
	}

	if strings.TrimSpace(task) == "" {
		return fmt.Errorf("usage: /plan <task description>")
	}

	if err := psm.Start(task, contextID); err != nil {
		return fmt.Errorf("failed to start planning session: %w", err)
	}

	return w.runWorkflow(psm)
}

func (w *Workflow) runWorkflow(psm *StateMachine) error {
	explorerDef := w.Agents.Get("explorer-agent")
	planningDef := w.Agents.Get("planning-agent")
	if explorerDef == nil || planningDef == nil {
		psm.Abort()
		return fmt.Errorf("required agents not found (explorer-agent, planning-agent)")
	}

	w.logf("\nStarting planning workflow for: %s\n", psm.Session().Task)

	// Step 1: exploration, a one-shot explorer-agent spawn.
	w.logf("\n[Step 1/5: Exploring codebase...]\n\n")

	exploreResult := w.Subagents.Spawn(agentloop.SubagentRequest{
		AgentName:     "explorer-agent",
		Task:          buildExplorationPrompt(psm.Session().Task),
		MaxIterations: explorerDef.MaxIterations,
	}, nil, w.Interrupt)

	if !exploreResult.Success {
		psm.Abort()
		return fmt.Errorf("exploration failed: %s", exploreResult.Error)
	}
	psm.SetExplorationFindings(exploreResult.Output)

	// Step 2: persistent planning agent. It lives for the entire Q&A loop so
	// refinement turns keep their full context.
	if err := psm.TransitionTo(StateSynthesizing); err != nil {
		return err
	}
	w.logf("\n[Step 2/5: Synthesizing plan...]\n\n")

	w.Backend.ClearSlot()
	w.planner = w.newPlanner(planningDef)

	planResult := w.planner.Run(buildPlanningPrompt(psm.Session().Task, psm.Session().ExplorationFindings))
	if planResult.StopReason != agentloop.StopCompleted {
		psm.Abort()
		w.Backend.ClearSlot()
		return fmt.Errorf("planning failed")
	}

	psm.SetPlanContent(ExtractPlanContent(planResult.FinalResponse))
	qa := ExtractQuestions(planResult.FinalResponse)

	// Steps 3 and 4: interactive Q&A against the same warm agent, looping
	// while the reply still yields questions.
	for len(qa.Questions) > 0 {
		if err := psm.TransitionTo(StateQuestioning); err != nil {
			return err
		}
		psm.SetQuestions(qa)
		if err := psm.Save(); err != nil {
			return err
		}

		w.logf("\n[Step 3/5: Design decisions needed]\n")
		w.logf("Found %d questions for you to answer.\n\n", len(qa.Questions))

		if err := psm.TransitionTo(StateAwaitingAnswers); err != nil {
			return err
		}

		switch w.RunQA(&qa, w.Interrupt) {
		case QAAborted:
			w.logf("\nPlanning aborted by user.\n")
			psm.Abort()
			w.Backend.ClearSlot()
			return nil
		case QAInterrupted:
			w.logf("\nPlanning interrupted. Session saved for later resume.\n")
			psm.SetQuestions(qa)
			psm.Save()
			w.Backend.ClearSlot()
			return nil
		}

		psm.SetAnswers(qa)

		if err := psm.TransitionTo(StateRefining); err != nil {
			return err
		}
		psm.IncrementIteration()
		w.logf("\n[Step 4/5: Refining plan based on your decisions (iteration %d)...]\n\n", psm.CurrentIteration())

		refineResult := w.planner.Run(buildContinuationPrompt(qa))
		if refineResult.StopReason != agentloop.StopCompleted {
			w.log().Warn("plan refinement failed", zap.String("stop", refineResult.StopReason.String()))
			break
		}

		psm.SetPlanContent(ExtractPlanContent(refineResult.FinalResponse))
		qa = ExtractQuestions(refineResult.FinalResponse)
	}

	w.Backend.ClearSlot()

	return w.approve(psm)
}

// approve runs step 5: show the plan, prompt y/n, save on approval.
func (w *Workflow) approve(psm *StateMachine) error {
	if psm.CurrentState() != StateAwaitingApproval {
		if err := psm.TransitionTo(StateAwaitingApproval); err != nil {
			return err
		}
	}
	w.logf("\n[Step 5/5: Plan ready for approval]\n\n")
	w.logf("=== Final Plan ===\n")

	lines := strings.Split(psm.Session().PlanContent, "\n")
	shown := lines
	if len(lines) > 50 {
		shown = lines[:50]
	}
	w.logf("%s\n", strings.Join(shown, "\n"))
	if len(lines) > 50 {
		w.logf("\n... (truncated, full plan will be saved to file)\n")
	}
	w.logf("\n")

	if !w.Approve("Approve this plan?") {
		w.logf("\nPlan not approved. Session saved for later.\n")
		return psm.Save()
	}

	if err := psm.TransitionTo(StateApproved); err != nil {
		return err
	}

	final := FormatPlan(PlanData{
		TaskSummary:     psm.Session().Task,
		CreatedAt:       psm.Session().CreatedAt,
		Version:         psm.CurrentIteration() + 1,
		Status:          "approved",
		DesignDecisions: DesignDecisionsFromQA(psm.Session().Answers),
		PlanBody:        psm.Session().PlanContent,
	})

	if err := w.Store.SavePlan(psm.Session().ContextID, final); err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	psm.Session().PlanPath = psm.PlanPath()
	if err := psm.Save(); err != nil {
		return err
	}

	w.logf("\nPlan approved and saved to: %s\n", psm.PlanPath())
	w.logf("Context ID: %s\n", psm.Session().ContextID)
	w.logf("\nTo implement this plan, ask: \"read the plan and implement each phase\"\n")
	return nil
}

// resume continues a saved session from wherever it stopped.
func (w *Workflow) resume(psm *StateMachine) error {
	w.logf("Resuming planning session from state: %s\n", psm.CurrentState())

	switch psm.CurrentState() {
	case StateExploring, StateSynthesizing:
		// Nothing durable was produced yet; restart from the beginning.
		return w.runWorkflow(psm)

	case StateQuestioning, StateAwaitingAnswers:
		qa := psm.Session().Questions
		if len(qa.Questions) == 0 {
			return w.approve(psm)
		}

		if psm.CurrentState() == StateQuestioning {
			if err := psm.TransitionTo(StateAwaitingAnswers); err != nil {
				return err
			}
		}

		switch w.RunQA(&qa, w.Interrupt) {
		case QAAborted:
			w.logf("\nPlanning aborted by user.\n")
			return psm.Abort()
		case QAInterrupted:
			psm.SetQuestions(qa)
			return psm.Save()
		}
		psm.SetAnswers(qa)

		if err := psm.TransitionTo(StateRefining); err != nil {
			return err
		}
		psm.IncrementIteration()
		return w.refineAndApprove(psm, qa)

	case StateRefining, StateAwaitingApproval:
		return w.approve(psm)

	case StateApproved:
		w.logf("Plan already approved. Path: %s\n", psm.Session().PlanPath)
		return nil

	case StateAborted:
		w.logf("Previous session was aborted. Starting fresh...\n")
		task, contextID := psm.Session().Task, psm.Session().ContextID
		psm.session = Session{State: StateIdle, ContextID: contextID}
		if err := psm.Start(task, contextID); err != nil {
			return err
		}
		return w.runWorkflow(psm)
	}

	return nil
}

// refineAndApprove continues the planning agent with the user's answers. The
// in-process planner instance is reused when it is still warm; across a
// process restart a fresh one is seeded with the saved plan and findings.
func (w *Workflow) refineAndApprove(psm *StateMachine, qa QASession) error {
	planningDef := w.Agents.Get("planning-agent")
	if planningDef == nil {
		psm.Abort()
		return fmt.Errorf("planning-agent not found")
	}

	prompt := buildContinuationPrompt(qa)
	if w.planner == nil {
		w.Backend.ClearSlot()
		w.planner = w.newPlanner(planningDef)
		prompt = "## User Task\n\n" + psm.Session().Task + "\n\n" +
			"## Current Plan\n\n" + psm.Session().PlanContent + "\n\n" + prompt
	}

	for {
		result := w.planner.Run(prompt)
		if result.StopReason != agentloop.StopCompleted {
			w.log().Warn("plan refinement failed", zap.String("stop", result.StopReason.String()))
			break
		}
		psm.SetPlanContent(ExtractPlanContent(result.FinalResponse))

		next := ExtractQuestions(result.FinalResponse)
		if len(next.Questions) == 0 {
			break
		}

		if err := psm.TransitionTo(StateQuestioning); err != nil {
			return err
		}
		psm.SetQuestions(next)
		psm.Save()
		if err := psm.TransitionTo(StateAwaitingAnswers); err != nil {
			return err
		}

		switch w.RunQA(&next, w.Interrupt) {
		case QAAborted:
			w.logf("\nPlanning aborted by user.\n")
			w.Backend.ClearSlot()
			return psm.Abort()
		case QAInterrupted:
			psm.SetQuestions(next)
			w.Backend.ClearSlot()
			return psm.Save()
		}

		psm.SetAnswers(next)
		if err := psm.TransitionTo(StateRefining); err != nil {
			return err
		}
		psm.IncrementIteration()
		prompt = buildContinuationPrompt(next)
	}

	w.Backend.ClearSlot()
	return w.approve(psm)
}
