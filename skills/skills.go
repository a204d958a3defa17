// Package skills discovers SKILL.md definitions and renders the
// <available_skills> prompt section. A skill is a directory containing a
// SKILL.md document with the same front-matter format as agent definitions.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"llamagent/agentdef"
)

// Skill is one discovered skill.
type Skill struct {
	Name        string
	Description string
	Path        string
}

// Manager holds the discovered skills.
type Manager struct {
	skills []Skill
}

// NewManager creates an empty manager.
func NewManager() *Manager { return &Manager{} }

// Discover walks each search path (if it exists) looking for immediate
// subdirectories containing SKILL.md. Earlier paths win on name collisions.
// Returns the number of discovered skills.
func (m *Manager) Discover(searchPaths []string) int {
	byName := make(map[string]Skill)

	for _, searchPath := range searchPaths {
		entries, err := os.ReadDir(searchPath)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			path := filepath.Join(searchPath, entry.Name(), "SKILL.md")
			content, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			def, err := agentdef.ParseFrontmatter(string(content), path)
			if err != nil {
				continue
			}
			if _, exists := byName[def.Name]; exists {
				continue
			}
			byName[def.Name] = Skill{Name: def.Name, Description: def.Description, Path: path}
		}
	}

	m.skills = m.skills[:0]
	for _, skill := range byName {
		m.skills = append(m.skills, skill)
	}
	sort.Slice(m.skills, func(i, j int) bool { return m.skills[i].Name < m.skills[j].Name })
	return len(m.skills)
}

// Skills returns the discovered skills sorted by name.
func (m *Manager) Skills() []Skill { return m.skills }

// PromptSection renders the <available_skills> XML block for the system
// prompt. Empty when no skills exist.
func (m *Manager) PromptSection() string {
	if len(m.skills) == 0 {
		return ""
	}

	escaper := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

	var sb strings.Builder
	sb.WriteString("<available_skills>\n")
	for _, skill := range m.skills {
		sb.WriteString("<skill>\n")
		fmt.Fprintf(&sb, "  <name>%s</name>\n", escaper.Replace(skill.Name))
		fmt.Fprintf(&sb, "  <description>%s</description>\n", escaper.Replace(skill.Description))
		fmt.Fprintf(&sb, "  <path>%s</path>\n", escaper.Replace(skill.Path))
		sb.WriteString("</skill>\n")
	}
	sb.WriteString("</available_skills>\n")
	return sb.String()
}
