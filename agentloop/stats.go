package agentloop

import (
	"fmt"

	"llamagent/llm"
)

// SessionStats tracks token usage across a session.
type SessionStats struct {
	TotalInput       int     `json:"total_input"`        // prompt tokens processed
	TotalOutput      int     `json:"total_output"`       // tokens generated
	TotalCached      int     `json:"total_cached"`       // tokens served from cache
	TotalPromptMS    float64 `json:"total_prompt_ms"`    // prompt evaluation time
	TotalPredictedMS float64 `json:"total_predicted_ms"` // generation time

	// Context usage tracking.
	CurrentContextTokens int `json:"current_context_tokens"` // prompt + output last turn
	ContextWindow        int `json:"context_window"`

	warned70 bool
	warned80 bool
}

// Update folds one completion's timings into the running counters. Cached
// tokens are tracked separately and excluded from the current-context figure,
// which counts prompt + output of the last turn only.
func (s *SessionStats) Update(t llm.Timings) {
	s.TotalInput += t.PromptN
	s.TotalOutput += t.PredictedN
	s.TotalCached += t.CachedN
	s.TotalPromptMS += t.PromptMS
	s.TotalPredictedMS += t.PredictedMS
	s.CurrentContextTokens = t.PromptN + t.PredictedN
}

// ContextWarning returns a user-facing warning when context usage crosses 70%
// or 80% of the window. Each threshold fires at most once per session.
func (s *SessionStats) ContextWarning() string {
	if s.ContextWindow <= 0 {
		return ""
	}
	pct := 100 * s.CurrentContextTokens / s.ContextWindow

	if pct >= 80 && !s.warned80 {
		s.warned80 = true
		s.warned70 = true
		return fmt.Sprintf("Context usage at %d%% of window (%d/%d tokens). Consider /compact.", pct, s.CurrentContextTokens, s.ContextWindow)
	}
	if pct >= 70 && !s.warned70 {
		s.warned70 = true
		return fmt.Sprintf("Context usage at %d%% of window (%d/%d tokens).", pct, s.CurrentContextTokens, s.ContextWindow)
	}
	return ""
}
