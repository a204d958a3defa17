package planning

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseQuestions(t *testing.T) {
	data := []byte(`{"questions": [
		{"id": 1, "text": "Which approach?", "options": ["A", "B"]},
		{"id": 2, "text": "How much testing?", "options": ["unit", "e2e"]}
	]}`)

	qa := ParseQuestions(data)
	if len(qa.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(qa.Questions))
	}
	if qa.Questions[0].Text != "Which approach?" || len(qa.Questions[0].Options) != 2 {
		t.Errorf("question 1 mismatch: %+v", qa.Questions[0])
	}
	if qa.Questions[0].SelectedOptionIndex != -1 {
		t.Errorf("fresh questions have no selection, got %d", qa.Questions[0].SelectedOptionIndex)
	}
}

func TestParseQuestionsAliases(t *testing.T) {
	// "question" for "text" and "answers" for "options".
	data := []byte(`{"questions": [
		{"question": "Pick one", "answers": ["x", "y", "z"]}
	]}`)

	qa := ParseQuestions(data)
	if len(qa.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(qa.Questions))
	}
	q := qa.Questions[0]
	if q.Text != "Pick one" {
		t.Errorf("alias question not mapped: %+v", q)
	}
	if len(q.Options) != 3 {
		t.Errorf("alias answers not mapped: %+v", q)
	}
	if q.ID != 1 {
		t.Errorf("missing ids are assigned sequentially, got %d", q.ID)
	}
}

func TestParseQuestionsBareArray(t *testing.T) {
	data := []byte(`[{"id": 1, "text": "Q", "options": ["a"]}]`)
	qa := ParseQuestions(data)
	if len(qa.Questions) != 1 {
		t.Errorf("bare arrays are accepted, got %d questions", len(qa.Questions))
	}
}

func TestParseQuestionsDropsIncomplete(t *testing.T) {
	data := []byte(`{"questions": [
		{"id": 1, "text": "No options"},
		{"id": 2, "options": ["a"]},
		{"id": 3, "text": "Valid", "options": ["a"]}
	]}`)
	qa := ParseQuestions(data)
	if len(qa.Questions) != 1 || qa.Questions[0].Text != "Valid" {
		t.Errorf("entries without text or options must be dropped, got %+v", qa.Questions)
	}
}

func TestExtractQuestionsFenced(t *testing.T) {
	output := "# The Plan\n\nSome plan text.\n\n```json\n" +
		`{"questions": [{"id": 1, "text": "Q1", "options": ["a", "b"]}]}` +
		"\n```\n\nTrailing."

	qa := ExtractQuestions(output)
	if len(qa.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(qa.Questions))
	}
}

func TestExtractQuestionsFencedUppercase(t *testing.T) {
	output := "plan\n```JSON\n" +
		`{"questions": [{"id": 1, "text": "Q1", "options": ["a"]}]}` +
		"\n```"
	qa := ExtractQuestions(output)
	if len(qa.Questions) != 1 {
		t.Errorf("fence tag is case-insensitive, got %d questions", len(qa.Questions))
	}
}

func TestExtractQuestionsInlineBalancedBraces(t *testing.T) {
	// No fence: recovered via balanced-brace scan, with nested braces and
	// escaped quotes inside strings.
	output := `Plan text. {"questions": [{"id": 1, "text": "Use \"X\" or {Y}?", "options": ["a {nested}", "b"]}]} trailing`
	qa := ExtractQuestions(output)
	if len(qa.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(qa.Questions))
	}
	if qa.Questions[0].Text != `Use "X" or {Y}?` {
		t.Errorf("escapes mishandled: %q", qa.Questions[0].Text)
	}
}

func TestExtractQuestionsMalformed(t *testing.T) {
	output := "plan\n```json\n{\"questions\": [{{{\n```"
	qa := ExtractQuestions(output)
	if len(qa.Questions) != 0 {
		t.Errorf("malformed JSON yields an empty session, got %d", len(qa.Questions))
	}
}

func TestExtractQuestionsAbsent(t *testing.T) {
	qa := ExtractQuestions("just a plan, no questions at all")
	if len(qa.Questions) != 0 {
		t.Errorf("expected empty session, got %d", len(qa.Questions))
	}
}

func TestExtractPlanContent(t *testing.T) {
	output := "# Plan\n\nbody\n\n```json\n{\"questions\": []}\n```"
	if got := ExtractPlanContent(output); got != "# Plan\n\nbody\n\n" {
		t.Errorf("plan content = %q", got)
	}

	inline := `# Plan {"questions": []}`
	if got := ExtractPlanContent(inline); got != "# Plan " {
		t.Errorf("plan content = %q", got)
	}

	plain := "# Plan only"
	if got := ExtractPlanContent(plain); got != plain {
		t.Errorf("plan content = %q", got)
	}
}

func TestQASessionCompletion(t *testing.T) {
	var empty QASession
	if empty.IsComplete() {
		t.Error("empty sessions are never complete")
	}

	qa := QASession{Questions: []Question{
		{ID: 1, Text: "a", Options: []string{"x"}},
		{ID: 2, Text: "b", Options: []string{"y"}},
	}}
	if qa.IsComplete() || qa.AnsweredCount() != 0 {
		t.Error("unanswered session must be incomplete")
	}

	qa.Questions[0].SelectedAnswer = "x"
	if qa.IsComplete() || qa.AnsweredCount() != 1 {
		t.Error("partially answered session must be incomplete")
	}

	qa.Questions[1].SelectedAnswer = "custom"
	if !qa.IsComplete() || qa.AnsweredCount() != 2 {
		t.Error("fully answered session must be complete")
	}
}

func TestQASessionRoundTrip(t *testing.T) {
	qa := QASession{
		CurrentQuestionIndex: 1,
		Questions: []Question{
			{ID: 1, Text: "a", Options: []string{"x", "y"}, SelectedAnswer: "y", SelectedOptionIndex: 1},
			{ID: 2, Text: "b", Options: []string{"z"}, SelectedAnswer: "free text", IsCustom: true, SelectedOptionIndex: -1},
		},
	}

	data, err := json.Marshal(qa)
	if err != nil {
		t.Fatal(err)
	}
	var decoded QASession
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(qa, decoded); diff != "" {
		t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatAnswers(t *testing.T) {
	qa := QASession{Questions: []Question{
		{ID: 1, Text: "Which DB?", Options: []string{"sqlite"}, SelectedAnswer: "sqlite"},
		{ID: 2, Text: "Error style?", SelectedAnswer: "wrapped errors", IsCustom: true},
	}}

	out := FormatAnswers(qa)
	for _, want := range []string{
		"User's design decisions:",
		"Q1: Which DB?",
		"Answer: sqlite",
		"Q2: Error style?",
		"Answer: wrapped errors (custom response)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
