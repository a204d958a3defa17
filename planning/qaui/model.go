// Package qaui is the interactive Q&A terminal UI for the planning workflow,
// built on bubbletea. The model navigates questions as tabs, options as a
// list, and supports a free-text custom answer per question. bubbletea
// restores the terminal to its prior mode on every exit path, including
// panics inside Update.
package qaui

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"llamagent/planning"
)

var (
	tabCurrentStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	tabAnsweredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	questionStyle    = lipgloss.NewStyle().Bold(true)
	cursorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	answeredStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	helpStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	customStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

// interruptTickMsg polls the shared interrupt flag while the UI is open.
type interruptTickMsg struct{}

// Model is the bubbletea model for one Q&A session.
type Model struct {
	session      *planning.QASession
	interrupt    *atomic.Bool
	optionIndex  int
	inCustomMode bool
	customInput  textinput.Model
	confirmAbort bool
	result       planning.QAResult
	done         bool
}

// NewModel builds the model, restoring the cursor from any pre-existing
// answer on the current question.
func NewModel(session *planning.QASession, interrupt *atomic.Bool) Model {
	ti := textinput.New()
	ti.Placeholder = "type your answer"
	ti.CharLimit = 400
	ti.Width = 60

	m := Model{
		session:     session,
		interrupt:   interrupt,
		customInput: ti,
		result:      planning.QACompleted,
	}
	m.restoreSelection()
	return m
}

func (m Model) Init() tea.Cmd {
	return interruptTick()
}

func interruptTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg {
		return interruptTickMsg{}
	})
}

func (m *Model) current() *planning.Question {
	if len(m.session.Questions) == 0 {
		return nil
	}
	idx := m.session.CurrentQuestionIndex
	if idx < 0 || idx >= len(m.session.Questions) {
		idx = 0
		m.session.CurrentQuestionIndex = 0
	}
	return &m.session.Questions[idx]
}

// optionCount includes the trailing Custom entry.
func (m *Model) optionCount() int {
	q := m.current()
	if q == nil {
		return 0
	}
	return len(q.Options) + 1
}

// restoreSelection positions the cursor based on the current question's
// saved answer.
func (m *Model) restoreSelection() {
	q := m.current()
	if q == nil {
		return
	}
	m.inCustomMode = false
	m.customInput.Blur()
	switch {
	case q.IsCustom:
		m.optionIndex = len(q.Options)
		m.customInput.SetValue(q.SelectedAnswer)
	case q.SelectedOptionIndex >= 0:
		m.optionIndex = q.SelectedOptionIndex
	default:
		m.optionIndex = 0
	}
}

// saveCustomInProgress keeps typed-but-unconfirmed custom text when the user
// switches tabs.
func (m *Model) saveCustomInProgress() {
	if !m.inCustomMode {
		return
	}
	if q := m.current(); q != nil && m.customInput.Value() != "" {
		q.SelectedAnswer = m.customInput.Value()
		q.IsCustom = true
		q.SelectedOptionIndex = -1
	}
}

func (m *Model) gotoQuestion(idx int) {
	if idx < 0 || idx >= len(m.session.Questions) {
		return
	}
	m.saveCustomInProgress()
	m.session.CurrentQuestionIndex = idx
	m.restoreSelection()
}

// advanceToUnanswered moves to the next unanswered question, wrapping.
func (m *Model) advanceToUnanswered() {
	n := len(m.session.Questions)
	start := m.session.CurrentQuestionIndex
	for i := 1; i <= n; i++ {
		idx := (start + i) % n
		if m.session.Questions[idx].SelectedAnswer == "" {
			m.session.CurrentQuestionIndex = idx
			m.restoreSelection()
			return
		}
	}
}

func (m *Model) selectCurrent() {
	q := m.current()
	if q == nil {
		return
	}
	if m.optionIndex < len(q.Options) {
		q.SelectedAnswer = q.Options[m.optionIndex]
		q.SelectedOptionIndex = m.optionIndex
		q.IsCustom = false
	} else if m.inCustomMode && m.customInput.Value() != "" {
		q.SelectedAnswer = m.customInput.Value()
		q.SelectedOptionIndex = -1
		q.IsCustom = true
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case interruptTickMsg:
		if m.interrupt != nil && m.interrupt.Load() {
			m.result = planning.QAInterrupted
			m.done = true
			return m, tea.Quit
		}
		return m, interruptTick()

	case tea.KeyMsg:
		if m.confirmAbort {
			switch msg.String() {
			case "y", "Y":
				m.result = planning.QAAborted
				m.done = true
				return m, tea.Quit
			default:
				m.confirmAbort = false
			}
			return m, nil
		}

		if m.inCustomMode {
			return m.updateCustomMode(msg)
		}

		switch msg.String() {
		case "up", "k":
			if m.optionIndex > 0 {
				m.optionIndex--
			}
		case "down", "j":
			if m.optionIndex < m.optionCount()-1 {
				m.optionIndex++
			}
		case "left", "h":
			m.gotoQuestion(m.session.CurrentQuestionIndex - 1)
		case "right", "l":
			m.gotoQuestion(m.session.CurrentQuestionIndex + 1)
		case "enter":
			m.selectCurrent()
			if m.session.IsComplete() {
				m.result = planning.QACompleted
				m.done = true
				return m, tea.Quit
			}
			m.advanceToUnanswered()
		case "tab":
			m.inCustomMode = true
			m.optionIndex = len(m.current().Options)
			if q := m.current(); q.IsCustom {
				m.customInput.SetValue(q.SelectedAnswer)
			} else {
				m.customInput.SetValue("")
			}
			m.customInput.Focus()
			return m, textinput.Blink
		case "ctrl+d":
			if m.session.IsComplete() {
				m.result = planning.QACompleted
				m.done = true
				return m, tea.Quit
			}
		case "esc", "q", "ctrl+c":
			m.confirmAbort = true
		}
	}

	return m, nil
}

func (m Model) updateCustomMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if m.customInput.Value() != "" {
			m.selectCurrent()
			m.inCustomMode = false
			m.customInput.Blur()
			if m.session.IsComplete() {
				m.result = planning.QACompleted
				m.done = true
				return m, tea.Quit
			}
			m.advanceToUnanswered()
		}
		return m, nil
	case "esc":
		m.inCustomMode = false
		m.customInput.SetValue("")
		m.customInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.customInput, cmd = m.customInput.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.done {
		return ""
	}

	var sb strings.Builder

	// Tab bar.
	var tabs []string
	for i, q := range m.session.Questions {
		label := fmt.Sprintf("[Q%d]", i+1)
		switch {
		case i == m.session.CurrentQuestionIndex:
			label = tabCurrentStyle.Render(fmt.Sprintf("[Q%d*]", i+1))
		case q.SelectedAnswer != "":
			label = tabAnsweredStyle.Render(fmt.Sprintf("[Q%d+]", i+1))
		}
		tabs = append(tabs, label)
	}
	sb.WriteString(strings.Join(tabs, " "))
	sb.WriteString("\n\n")

	q := m.current()
	if q == nil {
		return sb.String()
	}

	sb.WriteString(questionStyle.Render(fmt.Sprintf("Q%d: %s", q.ID, q.Text)))
	sb.WriteString("\n\n")

	for i, opt := range q.Options {
		cursor := "   "
		if i == m.optionIndex && !m.inCustomMode {
			cursor = cursorStyle.Render(" > ")
		}
		check := "[ ]"
		if i == q.SelectedOptionIndex {
			check = answeredStyle.Render("[x]")
		}
		fmt.Fprintf(&sb, "%s%s %s\n", cursor, check, opt)
	}

	// Custom entry.
	cursor := "   "
	if m.optionIndex == len(q.Options) || m.inCustomMode {
		cursor = cursorStyle.Render(" > ")
	}
	check := "[ ]"
	if q.IsCustom && q.SelectedAnswer != "" {
		check = answeredStyle.Render("[x]")
	}
	fmt.Fprintf(&sb, "%s%s Custom: ", cursor, check)
	switch {
	case m.inCustomMode:
		sb.WriteString(m.customInput.View())
	case q.IsCustom && q.SelectedAnswer != "":
		sb.WriteString(customStyle.Render(q.SelectedAnswer))
	default:
		sb.WriteString(helpStyle.Render("_______________"))
	}
	sb.WriteString("\n\n")

	if m.confirmAbort {
		sb.WriteString(customStyle.Render("Abort planning? (y/N)"))
	} else if m.inCustomMode {
		sb.WriteString(helpStyle.Render("Type answer, Enter to confirm, ESC to cancel custom input"))
	} else {
		help := "←/→ tabs | ↑/↓ select | Enter confirm | Tab custom | ESC abort"
		if m.session.IsComplete() {
			help += " | Ctrl+D submit"
		}
		sb.WriteString(helpStyle.Render(help))
	}
	sb.WriteString("\n")

	return sb.String()
}

// Show runs the Q&A UI to completion and reports how it ended. The session is
// mutated in place so prior selections survive an interrupt.
func Show(session *planning.QASession, interrupt *atomic.Bool) planning.QAResult {
	if len(session.Questions) == 0 {
		return planning.QACompleted
	}

	model := NewModel(session, interrupt)
	p := tea.NewProgram(model)
	final, err := p.Run()
	if err != nil {
		return planning.QAAborted
	}

	if m, ok := final.(Model); ok {
		return m.result
	}
	return planning.QAAborted
}
