package planning

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"llamagent/agentdef"
	"llamagent/agentloop"
	"llamagent/contextstore"
	"llamagent/llm"
)

// scriptedBackend returns canned completions in order.
type scriptedBackend struct {
	replies []string
	calls   int
	clears  int
}

func (b *scriptedBackend) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	if b.calls >= len(b.replies) {
		return nil, &llm.BackendError{Message: "no scripted reply left"}
	}
	reply := b.replies[b.calls]
	b.calls++
	return &llm.Completion{
		Message: llm.AssistantMessage(reply),
		Timings: llm.Timings{PromptN: 10, PredictedN: 5},
	}, nil
}

func (b *scriptedBackend) ClearSlot() { b.clears++ }

func (b *scriptedBackend) ContextWindow() int { return 8192 }

const planWithQuestions = `# Plan

## Phase 1
Do the thing.

` + "```json" + `
{"questions": [
  {"id": 1, "text": "Which approach?", "options": ["simple", "fancy"]},
  {"id": 2, "text": "Test depth?", "options": ["unit", "e2e"]}
]}
` + "```"

const refinedPlan = "# Refined Plan\n\n## Phase 1\nDo the thing, simply."

type workflowFixture struct {
	store     *contextstore.Store
	workflow  *Workflow
	backend   *scriptedBackend
	contextID string
	out       *bytes.Buffer
}

func newWorkflowFixture(t *testing.T, replies []string) *workflowFixture {
	t.Helper()

	store, err := contextstore.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	contextID, err := store.Create()
	if err != nil {
		t.Fatal(err)
	}

	agents := agentdef.NewRegistry()
	agents.RegisterEmbedded()

	backend := &scriptedBackend{replies: replies}
	registry := agentloop.NewToolRegistry()
	perms := agentloop.NewPermissionManager(true)
	subagents := agentloop.NewSubagentManager(backend, registry, agents, store, t.TempDir(), perms, nil)

	var interrupt atomic.Bool
	out := &bytes.Buffer{}

	wf := &Workflow{
		Store:       store,
		Agents:      agents,
		Subagents:   subagents,
		Backend:     backend,
		Registry:    registry,
		Permissions: perms,
		WorkingDir:  t.TempDir(),
		Interrupt:   &interrupt,
		Out:         out,
		RunQA: func(session *QASession, _ *atomic.Bool) QAResult {
			for i := range session.Questions {
				session.Questions[i].SelectedAnswer = session.Questions[i].Options[0]
				session.Questions[i].SelectedOptionIndex = 0
			}
			return QACompleted
		},
		Approve:       func(string) bool { return true },
		ConfirmResume: func(State) bool { return true },
	}

	return &workflowFixture{store: store, workflow: wf, backend: backend, contextID: contextID, out: out}
}

func TestWorkflowFullRun(t *testing.T) {
	f := newWorkflowFixture(t, []string{
		"## Findings\nThe code lives in pkg/.", // explorer
		planWithQuestions,                      // planner first turn
		refinedPlan,                            // refinement turn
	})

	if err := f.workflow.Run("add caching", f.contextID); err != nil {
		t.Fatalf("workflow failed: %v", err)
	}

	// Final state is approved and persisted.
	psm := NewStateMachine(f.store)
	if !psm.Load(f.contextID) {
		t.Fatal("expected a persisted session")
	}
	if psm.CurrentState() != StateApproved {
		t.Errorf("state = %s, want approved", psm.CurrentState())
	}
	if psm.CurrentIteration() != 1 {
		t.Errorf("iteration = %d, want 1", psm.CurrentIteration())
	}
	if psm.Session().ExplorationFindings == "" {
		t.Error("exploration findings must be persisted")
	}

	// plan.md carries the header, design decisions, and refined body.
	plan, err := f.store.LoadPlan(f.contextID)
	if err != nil || plan == "" {
		t.Fatalf("expected a saved plan: %v", err)
	}
	for _, want := range []string{
		"# Implementation Plan: add caching",
		"- Status: approved",
		"- Version: 2",
		"## Design Decisions",
		"- **Which approach?**: simple",
		"# Refined Plan",
	} {
		if !strings.Contains(plan, want) {
			t.Errorf("plan missing %q:\n%s", want, plan)
		}
	}

	if f.backend.calls != 3 {
		t.Errorf("expected 3 completions (explore, plan, refine), got %d", f.backend.calls)
	}
}

func TestWorkflowNoQuestionsGoesStraightToApproval(t *testing.T) {
	f := newWorkflowFixture(t, []string{
		"findings",
		"# Plan without questions\nJust do it.",
	})
	f.workflow.RunQA = func(*QASession, *atomic.Bool) QAResult {
		t.Fatal("no Q&A expected when the planner emits no questions")
		return QAAborted
	}

	if err := f.workflow.Run("small task", f.contextID); err != nil {
		t.Fatal(err)
	}

	psm := NewStateMachine(f.store)
	psm.Load(f.contextID)
	if psm.CurrentState() != StateApproved {
		t.Errorf("state = %s", psm.CurrentState())
	}
}

func TestWorkflowQAAborted(t *testing.T) {
	f := newWorkflowFixture(t, []string{"findings", planWithQuestions})
	f.workflow.RunQA = func(*QASession, *atomic.Bool) QAResult { return QAAborted }

	if err := f.workflow.Run("task", f.contextID); err != nil {
		t.Fatal(err)
	}

	psm := NewStateMachine(f.store)
	psm.Load(f.contextID)
	if psm.CurrentState() != StateAborted {
		t.Errorf("state = %s, want aborted", psm.CurrentState())
	}
}

func TestWorkflowQAInterruptedSavesForResume(t *testing.T) {
	f := newWorkflowFixture(t, []string{"findings", planWithQuestions})
	f.workflow.RunQA = func(session *QASession, _ *atomic.Bool) QAResult {
		// Answer the first question, then get interrupted.
		session.Questions[0].SelectedAnswer = session.Questions[0].Options[1]
		session.Questions[0].SelectedOptionIndex = 1
		return QAInterrupted
	}

	if err := f.workflow.Run("task", f.contextID); err != nil {
		t.Fatal(err)
	}

	psm := NewStateMachine(f.store)
	if !psm.Load(f.contextID) {
		t.Fatal("session must be saved")
	}
	if psm.CurrentState() != StateAwaitingAnswers {
		t.Errorf("state = %s, want awaiting_answers", psm.CurrentState())
	}
	if psm.Session().Questions.Questions[0].SelectedAnswer != "fancy" {
		t.Error("prior selections must survive the interrupt")
	}
	if !psm.IsActive() {
		t.Error("interrupted sessions stay active for resume")
	}
}

func TestWorkflowResumeFromAwaitingAnswers(t *testing.T) {
	// First run: interrupted during Q&A.
	f := newWorkflowFixture(t, []string{"findings", planWithQuestions})
	f.workflow.RunQA = func(*QASession, *atomic.Bool) QAResult { return QAInterrupted }
	if err := f.workflow.Run("task", f.contextID); err != nil {
		t.Fatal(err)
	}

	// Second run: simulate a process restart by dropping the warm planner,
	// then resume, finish the answers, refine, approve.
	f.workflow.planner = nil
	f.backend.replies = append(f.backend.replies, refinedPlan)
	f.workflow.RunQA = func(session *QASession, _ *atomic.Bool) QAResult {
		for i := range session.Questions {
			session.Questions[i].SelectedAnswer = session.Questions[i].Options[0]
			session.Questions[i].SelectedOptionIndex = 0
		}
		return QACompleted
	}
	if err := f.workflow.Run("", f.contextID); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	psm := NewStateMachine(f.store)
	psm.Load(f.contextID)
	if psm.CurrentState() != StateApproved {
		t.Errorf("state = %s, want approved after resumed refinement", psm.CurrentState())
	}
	if psm.CurrentIteration() != 1 {
		t.Errorf("iteration = %d, want 1", psm.CurrentIteration())
	}
	if !strings.Contains(psm.Session().PlanContent, "Refined Plan") {
		t.Error("refinement must run on resume")
	}
}

func TestWorkflowEmptyTaskFails(t *testing.T) {
	f := newWorkflowFixture(t, nil)
	if err := f.workflow.Run("   ", f.contextID); err == nil {
		t.Fatal("expected usage error for empty task")
	}
}

func TestWorkflowExplorationFailureAborts(t *testing.T) {
	// No scripted replies: the explorer's completion errors out.
	f := newWorkflowFixture(t, nil)
	if err := f.workflow.Run("task", f.contextID); err == nil {
		t.Fatal("expected exploration failure")
	}

	psm := NewStateMachine(f.store)
	psm.Load(f.contextID)
	if psm.CurrentState() != StateAborted {
		t.Errorf("state = %s, want aborted", psm.CurrentState())
	}
}

func TestWorkflowPlanStateFileLocation(t *testing.T) {
	f := newWorkflowFixture(t, []string{"findings", "# Plan\nno questions"})
	if err := f.workflow.Run("task", f.contextID); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(f.store.ContextPath(f.contextID), "plan_state.json")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("plan_state.json expected at %s: %v", path, err)
	}
	planPath := filepath.Join(f.store.ContextPath(f.contextID), "plan.md")
	if _, err := os.Stat(planPath); err != nil {
		t.Errorf("plan.md expected at %s: %v", planPath, err)
	}
}
