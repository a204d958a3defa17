// Package planning implements the /plan workflow: a persistent state machine
// coordinating an exploration subagent, a persistent planning agent, an
// interactive Q&A refinement loop, and final approval.
package planning

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"llamagent/contextstore"
)

// State is one node of the planning state machine.
type State string

const (
	StateIdle             State = "idle"
	StateExploring        State = "exploring"
	StateSynthesizing     State = "synthesizing"
	StateQuestioning      State = "questioning"
	StateAwaitingAnswers  State = "awaiting_answers"
	StateRefining         State = "refining"
	StateAwaitingApproval State = "awaiting_approval"
	StateApproved         State = "approved"
	StateAborted          State = "aborted"
)

// ErrInvalidTransition is returned when a transition is not in the table.
var ErrInvalidTransition = errors.New("invalid planning state transition")

// Session is the persisted state of one planning run, one file per context at
// <base>/contexts/<ctx-id>/plan_state.json.
type Session struct {
	State               State     `json:"state"`
	ContextID           string    `json:"context_id"`
	Task                string    `json:"task"`
	ExplorationFindings string    `json:"exploration_findings"`
	PlanContent         string    `json:"plan_content"`
	Questions           QASession `json:"questions"`
	Answers             QASession `json:"answers"`
	Iteration           int       `json:"iteration"`
	PlanPath            string    `json:"plan_path"`
	CreatedAt           string    `json:"created_at"`
	UpdatedAt           string    `json:"updated_at"`
}

// StateMachine owns a Session and persists every transition atomically.
type StateMachine struct {
	store   *contextstore.Store
	session Session
}

// NewStateMachine creates a machine in the idle state.
func NewStateMachine(store *contextstore.Store) *StateMachine {
	return &StateMachine{store: store, session: Session{State: StateIdle}}
}

func timestamp() string {
	return time.Now().Format("2006-01-02T15:04:05")
}

// Session returns the live session.
func (m *StateMachine) Session() *Session { return &m.session }

// CurrentState returns the current state.
func (m *StateMachine) CurrentState() State { return m.session.State }

// CurrentIteration returns the refinement iteration count.
func (m *StateMachine) CurrentIteration() int { return m.session.Iteration }

// Start begins a new session. Fails when one is already active.
func (m *StateMachine) Start(task, contextID string) error {
	if m.session.State != StateIdle {
		return fmt.Errorf("planning session already active (state %s)", m.session.State)
	}

	now := timestamp()
	m.session = Session{
		State:     StateExploring,
		ContextID: contextID,
		Task:      task,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.session.PlanPath = m.PlanPath()
	return m.Save()
}

// Abort moves to the terminal aborted state. Always legal.
func (m *StateMachine) Abort() error {
	m.session.State = StateAborted
	m.session.UpdatedAt = timestamp()
	return m.Save()
}

// ValidateTransition reports whether from -> to is in the transition table.
func ValidateTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateExploring
	case StateExploring:
		return to == StateSynthesizing || to == StateAborted
	case StateSynthesizing:
		return to == StateQuestioning || to == StateAwaitingApproval || to == StateAborted
	case StateQuestioning:
		return to == StateAwaitingAnswers || to == StateAborted
	case StateAwaitingAnswers:
		return to == StateRefining || to == StateAborted
	case StateRefining:
		return to == StateQuestioning || to == StateAwaitingApproval || to == StateAborted
	case StateAwaitingApproval:
		return to == StateApproved || to == StateRefining || to == StateAborted
	case StateApproved, StateAborted:
		return to == StateIdle
	default:
		return false
	}
}

// TransitionTo applies a validated transition and persists the session.
func (m *StateMachine) TransitionTo(to State) error {
	if !ValidateTransition(m.session.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.session.State, to)
	}
	m.session.State = to
	m.session.UpdatedAt = timestamp()
	return m.Save()
}

// IsActive reports whether the session is in a non-terminal, non-idle state.
func (m *StateMachine) IsActive() bool {
	s := m.session.State
	return s != StateIdle && s != StateApproved && s != StateAborted
}

// IsInteractive reports whether the session is waiting on user input.
func (m *StateMachine) IsInteractive() bool {
	return m.session.State == StateAwaitingAnswers || m.session.State == StateAwaitingApproval
}

// SetExplorationFindings stores the explorer output.
func (m *StateMachine) SetExplorationFindings(findings string) {
	m.session.ExplorationFindings = findings
	m.session.UpdatedAt = timestamp()
}

// SetPlanContent stores the current plan markdown.
func (m *StateMachine) SetPlanContent(content string) {
	m.session.PlanContent = content
	m.session.UpdatedAt = timestamp()
}

// SetQuestions stores the pending Q&A session.
func (m *StateMachine) SetQuestions(qa QASession) {
	m.session.Questions = qa
	m.session.UpdatedAt = timestamp()
}

// SetAnswers stores the answered Q&A session.
func (m *StateMachine) SetAnswers(qa QASession) {
	m.session.Answers = qa
	m.session.UpdatedAt = timestamp()
}

// IncrementIteration bumps the refinement counter.
func (m *StateMachine) IncrementIteration() {
	m.session.Iteration++
	m.session.UpdatedAt = timestamp()
}

// PlanPath returns the plan.md path for the session's context.
func (m *StateMachine) PlanPath() string {
	return filepath.Join(m.store.ContextPath(m.session.ContextID), "plan.md")
}

func (m *StateMachine) statePath() string {
	return filepath.Join(m.store.ContextPath(m.session.ContextID), "plan_state.json")
}

// Save persists the session atomically (temp + rename), so the canonical path
// never exposes a partial file.
func (m *StateMachine) Save() error {
	path := m.statePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create plan state directory: %w", err)
	}
	return contextstore.WriteJSONAtomic(path, &m.session)
}

// Load reads a saved session for the context. Returns false when no state
// file exists or it cannot be parsed; the machine is left idle either way.
func (m *StateMachine) Load(contextID string) bool {
	m.session = Session{State: StateIdle, ContextID: contextID}

	path := m.statePath()
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return false
	}
	session.ContextID = contextID
	m.session = session
	return true
}

// HasSavedSession reports whether a plan_state.json exists for the context.
func (m *StateMachine) HasSavedSession(contextID string) bool {
	_, err := os.Stat(filepath.Join(m.store.ContextPath(contextID), "plan_state.json"))
	return err == nil
}
