package planning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Question is one design decision with its options and the user's answer.
type Question struct {
	ID                  int      `json:"id"`
	Text                string   `json:"text"`
	Options             []string `json:"options"`
	SelectedAnswer      string   `json:"selected_answer"`
	IsCustom            bool     `json:"is_custom"`
	SelectedOptionIndex int      `json:"selected_option_index"`
}

// QASession is an ordered list of questions plus the cursor position, so an
// interrupted session reopens where it left off.
type QASession struct {
	Questions            []Question `json:"questions"`
	CurrentQuestionIndex int        `json:"current_question_index"`
}

// IsComplete reports whether every question has an answer. An empty session
// is never complete.
func (s *QASession) IsComplete() bool {
	if len(s.Questions) == 0 {
		return false
	}
	for _, q := range s.Questions {
		if q.SelectedAnswer == "" {
			return false
		}
	}
	return true
}

// AnsweredCount returns the number of answered questions.
func (s *QASession) AnsweredCount() int {
	count := 0
	for _, q := range s.Questions {
		if q.SelectedAnswer != "" {
			count++
		}
	}
	return count
}

// rawQuestion accepts the key aliases the planning agent uses in the wild:
// "question" for "text" and "answers" for "options".
type rawQuestion struct {
	ID       int      `json:"id"`
	Text     string   `json:"text"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answers  []string `json:"answers"`
}

// ParseQuestions builds a QASession from decoded agent output: either an
// object with a "questions" array or a bare array. Entries without text or
// options are dropped.
func ParseQuestions(data []byte) QASession {
	var session QASession

	var wrapper struct {
		Questions []rawQuestion `json:"questions"`
	}
	var raw []rawQuestion

	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Questions != nil {
		raw = wrapper.Questions
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return session
	}

	for i, rq := range raw {
		q := Question{
			ID:                  rq.ID,
			Text:                rq.Text,
			Options:             rq.Options,
			SelectedOptionIndex: -1,
		}
		if q.ID == 0 {
			q.ID = i + 1
		}
		if q.Text == "" {
			q.Text = rq.Question
		}
		if len(q.Options) == 0 {
			q.Options = rq.Answers
		}
		if q.Text != "" && len(q.Options) > 0 {
			session.Questions = append(session.Questions, q)
		}
	}

	return session
}

// ExtractQuestions pulls the questions JSON out of raw agent output. It first
// looks for a fenced json block (case-insensitive fence tag); when none
// exists, it falls back to a balanced-brace scan starting at the literal
// {"questions", respecting string escapes. Malformed JSON yields an empty
// session, never an error.
func ExtractQuestions(output string) QASession {
	jsonStr := extractFencedJSON(output)
	if jsonStr == "" {
		jsonStr = extractBalancedObject(output, `{"questions"`)
	}
	if jsonStr == "" {
		return QASession{}
	}
	return ParseQuestions([]byte(jsonStr))
}

// extractFencedJSON returns the content of the first ```json fence.
func extractFencedJSON(output string) string {
	start := -1
	for i := strings.Index(output, "```"); i >= 0; {
		if i+len("```json") <= len(output) && strings.EqualFold(output[i+3:i+len("```json")], "json") {
			start = i
			break
		}
		next := strings.Index(output[i+3:], "```")
		if next < 0 {
			break
		}
		i += 3 + next
	}
	if start < 0 {
		return ""
	}

	contentStart := start + len("```json")
	for contentStart < len(output) {
		c := output[contentStart]
		if c != '\n' && c != '\r' && c != ' ' {
			break
		}
		contentStart++
	}

	contentEnd := strings.Index(output[contentStart:], "```")
	if contentEnd < 0 {
		return ""
	}
	return strings.TrimRight(output[contentStart:contentStart+contentEnd], " \r\n")
}

// extractBalancedObject recovers the JSON object starting at marker by
// counting braces outside of strings.
func extractBalancedObject(output, marker string) string {
	start := strings.Index(output, marker)
	if start < 0 {
		return ""
	}

	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(output); i++ {
		c := output[i]

		if escapeNext {
			escapeNext = false
			continue
		}
		if c == '\\' && inString {
			escapeNext = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		if c == '{' {
			braceCount++
		}
		if c == '}' {
			braceCount--
			if braceCount == 0 {
				return output[start : i+1]
			}
		}
	}
	return ""
}

// ExtractPlanContent returns the plan markdown: everything before the
// questions JSON block.
func ExtractPlanContent(output string) string {
	if idx := strings.Index(output, "```json"); idx >= 0 {
		return output[:idx]
	}
	if idx := strings.Index(output, `{"questions"`); idx >= 0 {
		return output[:idx]
	}
	return output
}

// FormatAnswers renders the user's decisions for the refinement prompt.
func FormatAnswers(session QASession) string {
	var sb strings.Builder
	sb.WriteString("User's design decisions:\n\n")

	for _, q := range session.Questions {
		fmt.Fprintf(&sb, "Q%d: %s\n", q.ID, q.Text)
		fmt.Fprintf(&sb, "Answer: %s", q.SelectedAnswer)
		if q.IsCustom {
			sb.WriteString(" (custom response)")
		}
		sb.WriteString("\n\n")
	}

	return sb.String()
}
