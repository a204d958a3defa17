package qaui

import (
	"strings"
	"sync/atomic"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"llamagent/planning"
)

func testSession() *planning.QASession {
	return &planning.QASession{
		Questions: []planning.Question{
			{ID: 1, Text: "Which approach?", Options: []string{"simple", "fancy"}, SelectedOptionIndex: -1},
			{ID: 2, Text: "Test depth?", Options: []string{"unit", "e2e"}, SelectedOptionIndex: -1},
		},
	}
}

func key(t tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: t} }

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func step(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, _ := m.Update(msg)
	next, isModel := updated.(Model)
	if !isModel {
		t.Fatalf("Update returned %T", updated)
	}
	return next
}

func TestSelectAndAdvance(t *testing.T) {
	session := testSession()
	var interrupt atomic.Bool
	m := NewModel(session, &interrupt)

	// Down to the second option, select it.
	m = step(t, m, key(tea.KeyDown))
	m = step(t, m, key(tea.KeyEnter))

	if session.Questions[0].SelectedAnswer != "fancy" {
		t.Errorf("answer = %q", session.Questions[0].SelectedAnswer)
	}
	if session.CurrentQuestionIndex != 1 {
		t.Errorf("expected advance to question 2, at %d", session.CurrentQuestionIndex)
	}

	// Answer the last question: the model completes and quits.
	m = step(t, m, key(tea.KeyEnter))
	if !m.done {
		t.Fatal("expected the model to finish after the last answer")
	}
	if m.result != planning.QACompleted {
		t.Errorf("result = %v", m.result)
	}
	if session.Questions[1].SelectedAnswer != "unit" {
		t.Errorf("answer = %q", session.Questions[1].SelectedAnswer)
	}
}

func TestVimNavigation(t *testing.T) {
	session := testSession()
	var interrupt atomic.Bool
	m := NewModel(session, &interrupt)

	m = step(t, m, runes("j"))
	if m.optionIndex != 1 {
		t.Errorf("j moves down, index = %d", m.optionIndex)
	}
	m = step(t, m, runes("k"))
	if m.optionIndex != 0 {
		t.Errorf("k moves up, index = %d", m.optionIndex)
	}
	m = step(t, m, runes("l"))
	if session.CurrentQuestionIndex != 1 {
		t.Errorf("l moves to the next question, at %d", session.CurrentQuestionIndex)
	}
	m = step(t, m, runes("h"))
	if session.CurrentQuestionIndex != 0 {
		t.Errorf("h moves back, at %d", session.CurrentQuestionIndex)
	}
}

func TestCustomAnswer(t *testing.T) {
	session := testSession()
	var interrupt atomic.Bool
	m := NewModel(session, &interrupt)

	m = step(t, m, key(tea.KeyTab))
	if !m.inCustomMode {
		t.Fatal("tab enters custom mode")
	}

	m = step(t, m, runes("use a ring buffer"))
	m = step(t, m, key(tea.KeyEnter))

	q := session.Questions[0]
	if !q.IsCustom || q.SelectedAnswer != "use a ring buffer" {
		t.Errorf("custom answer not recorded: %+v", q)
	}
	if q.SelectedOptionIndex != -1 {
		t.Errorf("custom answers clear the option index, got %d", q.SelectedOptionIndex)
	}
	if m.inCustomMode {
		t.Error("confirming leaves custom mode")
	}
}

func TestCustomModeEscCancels(t *testing.T) {
	session := testSession()
	var interrupt atomic.Bool
	m := NewModel(session, &interrupt)

	m = step(t, m, key(tea.KeyTab))
	m = step(t, m, runes("half typed"))
	m = step(t, m, key(tea.KeyEsc))

	if m.inCustomMode {
		t.Error("esc leaves custom mode")
	}
	if session.Questions[0].SelectedAnswer != "" {
		t.Error("cancelled input must not be recorded")
	}
}

func TestAbortConfirmation(t *testing.T) {
	session := testSession()
	var interrupt atomic.Bool
	m := NewModel(session, &interrupt)

	m = step(t, m, key(tea.KeyEsc))
	if !m.confirmAbort {
		t.Fatal("esc prompts for abort confirmation")
	}

	// Anything but y cancels the abort.
	m = step(t, m, runes("n"))
	if m.confirmAbort || m.done {
		t.Error("n returns to the questions")
	}

	m = step(t, m, key(tea.KeyEsc))
	m = step(t, m, runes("y"))
	if !m.done || m.result != planning.QAAborted {
		t.Errorf("y aborts, got done=%v result=%v", m.done, m.result)
	}
}

func TestInterruptFlagEndsSession(t *testing.T) {
	session := testSession()
	var interrupt atomic.Bool
	m := NewModel(session, &interrupt)

	interrupt.Store(true)
	m = step(t, m, interruptTickMsg{})

	if !m.done || m.result != planning.QAInterrupted {
		t.Errorf("interrupt flag ends the UI, got done=%v result=%v", m.done, m.result)
	}
}

func TestCtrlDSubmitsOnlyWhenComplete(t *testing.T) {
	session := testSession()
	var interrupt atomic.Bool
	m := NewModel(session, &interrupt)

	m = step(t, m, key(tea.KeyCtrlD))
	if m.done {
		t.Fatal("ctrl+d must not submit with unanswered questions")
	}

	session.Questions[0].SelectedAnswer = "simple"
	session.Questions[1].SelectedAnswer = "unit"
	m = step(t, m, key(tea.KeyCtrlD))
	if !m.done || m.result != planning.QACompleted {
		t.Error("ctrl+d submits once everything is answered")
	}
}

func TestEnterWrapsToUnanswered(t *testing.T) {
	session := testSession()
	session.Questions = append(session.Questions, planning.Question{
		ID: 3, Text: "Third?", Options: []string{"a"}, SelectedOptionIndex: -1,
	})
	// Pre-answer question 2; answering question 1 should skip to question 3.
	session.Questions[1].SelectedAnswer = "unit"

	var interrupt atomic.Bool
	m := NewModel(session, &interrupt)
	m = step(t, m, key(tea.KeyEnter))

	if session.CurrentQuestionIndex != 2 {
		t.Errorf("expected wrap to the next unanswered question, at %d", session.CurrentQuestionIndex)
	}
	_ = m
}

func TestViewRendersState(t *testing.T) {
	session := testSession()
	session.Questions[0].SelectedAnswer = "simple"
	session.Questions[0].SelectedOptionIndex = 0

	var interrupt atomic.Bool
	m := NewModel(session, &interrupt)
	view := m.View()

	for _, want := range []string{"Q1: Which approach?", "simple", "fancy", "Custom:"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestShowEmptySessionCompletes(t *testing.T) {
	var interrupt atomic.Bool
	if got := Show(&planning.QASession{}, &interrupt); got != planning.QACompleted {
		t.Errorf("empty sessions complete immediately, got %v", got)
	}
}
