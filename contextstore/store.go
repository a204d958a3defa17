// Package contextstore persists conversations, plans, and compaction
// archives under a single data directory.
//
// Layout:
//
//	<base>/contexts/<uuid>/conversation.json
//	<base>/contexts/<uuid>/conversation_<ts>.json   (pre-compaction archive)
//	<base>/contexts/<uuid>/compact_<ts>.json
//	<base>/contexts/<uuid>/plan.md
//	<base>/contexts/<uuid>/plan_state.json
//
// All JSON writes are atomic: serialize to <path>.tmp, then rename over the
// target. A reader sees either the prior version or the new one, never a
// truncated write. The store tolerates no concurrent writers.
package contextstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"llamagent/llm"
)

// ConversationState is the persisted form of one context.
type ConversationState struct {
	ID        string                 `json:"id"`
	CreatedAt string                 `json:"created_at"`
	UpdatedAt string                 `json:"updated_at"`
	Messages  []llm.Message          `json:"messages"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Summary is one row of a context listing.
type Summary struct {
	ID           string
	UpdatedAt    string
	Preview      string
	MessageCount int
}

// ArchiveRef points at one pre-compaction archive and its compact entry.
type ArchiveRef struct {
	Timestamp       string
	Filepath        string
	CompactFilepath string
	MessageCount    int
}

// Store persists contexts under basePath/contexts.
type Store struct {
	basePath string
}

// NewStore creates the store, ensuring the contexts directory exists.
func NewStore(basePath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(basePath, "contexts"), 0o755); err != nil {
		return nil, fmt.Errorf("create contexts directory: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// BasePath returns the data directory root.
func (s *Store) BasePath() string { return s.basePath }

// ContextPath returns the directory of one context.
func (s *Store) ContextPath(id string) string {
	return filepath.Join(s.basePath, "contexts", id)
}

func nowISO8601() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// TimestampNow returns a filename-safe UTC timestamp.
func TimestampNow() string {
	return time.Now().UTC().Format("20060102_150405")
}

// WriteJSONAtomic serializes v to path via a temp file and rename. The temp
// file is removed when the rename fails.
func WriteJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// readJSON loads path into v. Returns (false, nil) when the file is absent;
// parse errors are surfaced.
func readJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// Create makes a new empty context and returns its id.
func (s *Store) Create() (string, error) {
	id := uuid.NewString()
	if err := os.MkdirAll(s.ContextPath(id), 0o755); err != nil {
		return "", fmt.Errorf("create context directory: %w", err)
	}

	now := nowISO8601()
	state := &ConversationState{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []llm.Message{},
		Metadata:  map[string]interface{}{},
	}
	if err := s.Save(state); err != nil {
		return "", err
	}
	return id, nil
}

// Load reads a context. Returns (nil, nil) when it does not exist.
func (s *Store) Load(id string) (*ConversationState, error) {
	var state ConversationState
	found, err := readJSON(filepath.Join(s.ContextPath(id), "conversation.json"), &state)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &state, nil
}

// Save writes a context atomically, creating its directory if needed.
func (s *Store) Save(state *ConversationState) error {
	dir := s.ContextPath(state.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create context directory: %w", err)
	}
	return WriteJSONAtomic(filepath.Join(dir, "conversation.json"), state)
}

// AppendMessage loads, appends, and saves. Fails when the context is absent.
func (s *Store) AppendMessage(id string, msg llm.Message) error {
	state, err := s.Load(id)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("context %s does not exist", id)
	}
	state.Messages = append(state.Messages, msg)
	state.UpdatedAt = nowISO8601()
	return s.Save(state)
}

// SaveMessages replaces the full message array (batch save after a turn).
func (s *Store) SaveMessages(id string, messages []llm.Message) error {
	state, err := s.Load(id)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("context %s does not exist", id)
	}
	state.Messages = messages
	state.UpdatedAt = nowISO8601()
	return s.Save(state)
}

// preview returns the first line of the last user message, truncated to 80
// characters.
func preview(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != llm.RoleUser {
			continue
		}
		content := messages[i].Content
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[:idx]
		}
		if len(content) > 80 {
			content = content[:77] + "..."
		}
		return content
	}
	return "(empty)"
}

// List returns summaries of all contexts, newest first. Unparseable contexts
// are skipped.
func (s *Store) List() []Summary {
	var result []Summary

	entries, err := os.ReadDir(filepath.Join(s.basePath, "contexts"))
	if err != nil {
		return result
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		state, err := s.Load(entry.Name())
		if err != nil || state == nil {
			continue
		}
		result = append(result, Summary{
			ID:           state.ID,
			UpdatedAt:    state.UpdatedAt,
			Preview:      preview(state.Messages),
			MessageCount: len(state.Messages),
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt > result[j].UpdatedAt })
	return result
}

// Delete removes a context and everything under it.
func (s *Store) Delete(id string) error {
	path := s.ContextPath(id)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("context %s does not exist", id)
	}
	return os.RemoveAll(path)
}

// Exists reports whether the context has a conversation file.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(filepath.Join(s.ContextPath(id), "conversation.json"))
	return err == nil
}

// SavePlan writes plan.md atomically and records plan_ref in the context
// metadata.
func (s *Store) SavePlan(id, content string) error {
	dir := s.ContextPath(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create context directory: %w", err)
	}

	path := filepath.Join(dir, "plan.md")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	if state, err := s.Load(id); err == nil && state != nil {
		if state.Metadata == nil {
			state.Metadata = map[string]interface{}{}
		}
		state.Metadata["plan_ref"] = "plan.md"
		state.UpdatedAt = nowISO8601()
		if err := s.Save(state); err != nil {
			return err
		}
	}
	return nil
}

// LoadPlan returns the plan content, or "" when absent.
func (s *Store) LoadPlan(id string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.ContextPath(id), "plan.md"))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// HasPlan reports whether the context has a saved plan.
func (s *Store) HasPlan(id string) bool {
	_, err := os.Stat(filepath.Join(s.ContextPath(id), "plan.md"))
	return err == nil
}

// Archives lists the pre-compaction archives of a context, oldest first.
func (s *Store) Archives(id string) []ArchiveRef {
	var result []ArchiveRef

	dir := s.ContextPath(id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return result
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "conversation_") || !strings.HasSuffix(name, ".json") || name == "conversation.json" {
			continue
		}
		ts := strings.TrimSuffix(strings.TrimPrefix(name, "conversation_"), ".json")

		ref := ArchiveRef{
			Timestamp:       ts,
			Filepath:        filepath.Join(dir, name),
			CompactFilepath: filepath.Join(dir, "compact_"+ts+".json"),
		}
		var archived []llm.Message
		if found, err := readJSON(ref.Filepath, &archived); err == nil && found {
			ref.MessageCount = len(archived)
		}
		result = append(result, ref)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp < result[j].Timestamp })
	return result
}
