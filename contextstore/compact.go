package contextstore

import (
	"fmt"
	"path/filepath"
	"strings"

	"llamagent/llm"
)

// CompactEntry is the persisted record of one compaction: programmatically
// extracted fields plus the LLM-generated summary.
type CompactEntry struct {
	Timestamp string `json:"timestamp"`

	// Programmatically extracted.
	UserMessages  []string `json:"user_messages"`
	FilesModified []string `json:"files_modified"`
	CommandsRun   []string `json:"commands_run"`
	PlanRef       string   `json:"plan_ref,omitempty"`

	// LLM-generated.
	Summary      string                 `json:"summary"`
	KeyDecisions map[string]interface{} `json:"key_decisions"`
	CurrentState string                 `json:"current_state,omitempty"`
	PendingTasks []string               `json:"pending_tasks,omitempty"`
}

// renderCompactMessage builds the synthetic system message that replaces the
// raw history after compaction.
func renderCompactMessage(entry CompactEntry, hasPlan bool) string {
	var sb strings.Builder
	sb.WriteString("# Previous Context Summary\n\n")
	sb.WriteString(entry.Summary)
	sb.WriteString("\n")

	if entry.CurrentState != "" {
		sb.WriteString("\n## Current State\n")
		sb.WriteString(entry.CurrentState)
		sb.WriteString("\n")
	}

	if len(entry.PendingTasks) > 0 {
		sb.WriteString("\n## Pending Tasks\n")
		for _, task := range entry.PendingTasks {
			fmt.Fprintf(&sb, "- %s\n", task)
		}
	}

	if len(entry.FilesModified) > 0 {
		sb.WriteString("\n## Files Modified\n")
		for _, f := range entry.FilesModified {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}

	if entry.PlanRef != "" || hasPlan {
		sb.WriteString("\n## Active Plan\n")
		sb.WriteString("plan.md exists - use read_plan tool to review if needed\n")
	}

	return sb.String()
}

// Compact archives the context's current messages, writes the compact entry,
// records the archive in metadata, and replaces the messages with a single
// synthetic system message rendering the entry. The next completion starts
// from the summary; the raw history stays on disk.
func (s *Store) Compact(id string, entry CompactEntry) error {
	state, err := s.Load(id)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("context %s does not exist", id)
	}

	ts := TimestampNow()
	dir := s.ContextPath(id)

	archivePath := filepath.Join(dir, "conversation_"+ts+".json")
	if err := WriteJSONAtomic(archivePath, state.Messages); err != nil {
		return err
	}

	entry.Timestamp = ts
	if err := WriteJSONAtomic(filepath.Join(dir, "compact_"+ts+".json"), &entry); err != nil {
		return err
	}

	if state.Metadata == nil {
		state.Metadata = map[string]interface{}{}
	}
	archives, _ := state.Metadata["archives"].([]interface{})
	archives = append(archives, map[string]interface{}{
		"timestamp":     ts,
		"message_count": len(state.Messages),
		"compact_ref":   "compact_" + ts + ".json",
	})
	state.Metadata["archives"] = archives

	hasPlan := s.HasPlan(id)
	if hasPlan {
		state.Metadata["plan_ref"] = "plan.md"
	}

	state.Messages = []llm.Message{llm.SystemMessage(renderCompactMessage(entry, hasPlan))}
	state.UpdatedAt = nowISO8601()

	return s.Save(state)
}
