// Package agentdef parses and catalogs subagent definitions: the embedded
// planning and explorer agents compiled into the binary, plus AGENT.md files
// discovered on disk.
package agentdef

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Iteration bounds for discovered agents.
const (
	MinIterations = 1
	MaxIterations = 100

	DefaultIterations = 20
)

// Definition is one agent: front-matter fields plus the free-form
// instruction body.
type Definition struct {
	Name          string
	Description   string
	Instructions  string
	AllowedTools  []string
	MaxIterations int
	Metadata      map[string]string
	Path          string // source file, "<embedded>/<name>" for built-ins
	AgentDir      string
}

var nameRE = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidateName checks the agent naming rules: 1-64 characters, lowercase
// letters, digits, and single hyphens that neither start nor end the name.
func ValidateName(name string) bool {
	if len(name) == 0 || len(name) > 64 {
		return false
	}
	return nameRE.MatchString(name)
}

// ParseFrontmatter parses an agent document: a `---` delimited front-matter
// block followed by the instruction body. Returns an error when the document
// has no front-matter, or when name or description are missing or invalid.
func ParseFrontmatter(content, path string) (*Definition, error) {
	if !strings.HasPrefix(content, "---\n") && content != "---" && !strings.HasPrefix(content, "---\r\n") {
		return nil, fmt.Errorf("%s: missing front-matter delimiter", path)
	}

	rest := strings.TrimPrefix(content, "---")
	rest = strings.TrimPrefix(rest, "\r\n")
	rest = strings.TrimPrefix(rest, "\n")

	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, fmt.Errorf("%s: unterminated front-matter", path)
	}
	frontmatter := rest[:end]
	body := rest[end+len("\n---"):]
	body = strings.TrimLeft(body, "\n")

	var fields map[string]interface{}
	if err := yaml.Unmarshal([]byte(frontmatter), &fields); err != nil {
		return nil, fmt.Errorf("%s: invalid front-matter: %w", path, err)
	}

	def := &Definition{
		Instructions:  body,
		MaxIterations: DefaultIterations,
		Metadata:      make(map[string]string),
		Path:          path,
	}

	for key, value := range fields {
		str := strings.TrimSpace(fmt.Sprintf("%v", value))
		switch key {
		case "name":
			def.Name = str
		case "description":
			def.Description = str
		case "allowed-tools":
			def.AllowedTools = strings.Fields(str)
		case "max-iterations":
			if n, err := strconv.Atoi(str); err == nil {
				if n < MinIterations {
					n = MinIterations
				}
				if n > MaxIterations {
					n = MaxIterations
				}
				def.MaxIterations = n
			}
		default:
			def.Metadata[key] = str
		}
	}

	if def.Name == "" || !ValidateName(def.Name) {
		return nil, fmt.Errorf("%s: missing or invalid agent name %q", path, def.Name)
	}
	if def.Description == "" {
		return nil, fmt.Errorf("%s: missing description", path)
	}

	return def, nil
}

// Registry holds the known agent definitions with precedence applied.
type Registry struct {
	embedded map[string]Definition
	agents   []Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{embedded: make(map[string]Definition)}
}

// RegisterEmbedded seeds the registry with the compiled-in agents. Embedded
// definitions have the highest precedence and cannot be overridden from disk.
func (r *Registry) RegisterEmbedded() {
	for name, doc := range embeddedAgents {
		def, err := ParseFrontmatter(doc, "<embedded>/"+name)
		if err != nil {
			continue
		}
		def.AgentDir = "<embedded>"
		r.embedded[def.Name] = *def
	}
	r.rebuild(nil)
}

// parseAgentDir parses <dir>/AGENT.md, returning nil when absent or invalid.
func parseAgentDir(dir string) *Definition {
	path := filepath.Join(dir, "AGENT.md")
	content, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	def, err := ParseFrontmatter(string(content), path)
	if err != nil {
		return nil
	}
	def.AgentDir = dir
	return def
}

// Discover walks the search paths looking for immediate subdirectories
// containing AGENT.md. searchPaths is ordered highest to lowest disk
// priority; the walk iterates in reverse so later (higher priority) entries
// overwrite earlier ones. Disk agents whose name collides with an embedded
// one are silently skipped. Returns the total number of registered agents.
func (r *Registry) Discover(searchPaths []string) int {
	byName := make(map[string]Definition)

	for i := len(searchPaths) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(searchPaths[i])
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			def := parseAgentDir(filepath.Join(searchPaths[i], entry.Name()))
			if def == nil {
				continue
			}
			if _, isEmbedded := r.embedded[def.Name]; isEmbedded {
				continue
			}
			byName[def.Name] = *def
		}
	}

	r.rebuild(byName)
	return len(r.agents)
}

// rebuild merges disk agents with embedded ones (embedded win) into the
// sorted agent list.
func (r *Registry) rebuild(disk map[string]Definition) {
	merged := make(map[string]Definition, len(disk)+len(r.embedded))
	for name, def := range disk {
		merged[name] = def
	}
	for name, def := range r.embedded {
		merged[name] = def
	}

	r.agents = r.agents[:0]
	for _, def := range merged {
		r.agents = append(r.agents, def)
	}
	sort.Slice(r.agents, func(i, j int) bool { return r.agents[i].Name < r.agents[j].Name })
}

// Get returns the definition with the given name, or nil.
func (r *Registry) Get(name string) *Definition {
	for i := range r.agents {
		if r.agents[i].Name == name {
			return &r.agents[i]
		}
	}
	return nil
}

// Agents returns all definitions sorted by name.
func (r *Registry) Agents() []Definition { return r.agents }

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// PromptSection renders the <available_agents> XML block appended to the
// main loop's system prompt. Empty when no agents are registered.
func (r *Registry) PromptSection() string {
	if len(r.agents) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("<available_agents>\n")
	for _, def := range r.agents {
		sb.WriteString("<agent>\n")
		fmt.Fprintf(&sb, "  <name>%s</name>\n", xmlEscaper.Replace(def.Name))
		fmt.Fprintf(&sb, "  <description>%s</description>\n", xmlEscaper.Replace(def.Description))
		if len(def.AllowedTools) > 0 {
			fmt.Fprintf(&sb, "  <tools>%s</tools>\n", strings.Join(def.AllowedTools, " "))
		}
		sb.WriteString("</agent>\n")
	}
	sb.WriteString("</available_agents>\n")
	return sb.String()
}
