package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Loader discovers skills under <workspace>/skills with an optional builtin
// directory as fallback.
type Loader struct {
	workspaceSkills string
	builtinSkills   string
}

// NewLoader creates a loader for the given workspace. builtinDir may be empty.
func NewLoader(workspace, builtinDir string) *Loader {
	return &Loader{
		workspaceSkills: filepath.Join(workspace, "skills"),
		builtinSkills:   builtinDir,
	}
}

// List returns every discovered skill, workspace entries shadowing builtin
// ones, sorted by name. When onlyAvailable is set, skills with unmet
// requirements are dropped.
func (l *Loader) List(onlyAvailable bool) []*Skill {
	byName := map[string]*Skill{}
	l.scan(l.builtinSkills, "builtin", byName)
	l.scan(l.workspaceSkills, "workspace", byName)

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]*Skill, 0, len(names))
	for _, name := range names {
		skill := byName[name]
		if onlyAvailable && !skill.Available() {
			continue
		}
		result = append(result, skill)
	}
	return result
}

func (l *Loader) scan(dir, source string, byName map[string]*Skill) {
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), "SKILL.md")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		meta, _ := parseFrontMatter(string(data))
		byName[entry.Name()] = &Skill{
			Name:   entry.Name(),
			Path:   path,
			Source: source,
			Meta:   meta,
		}
	}
}

// Load returns the raw SKILL.md content by skill name.
func (l *Loader) Load(name string) (string, bool) {
	for _, dir := range []string{l.workspaceSkills, l.builtinSkills} {
		if dir == "" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name, "SKILL.md"))
		if err == nil {
			return string(data), true
		}
	}
	return "", false
}

// LoadForContext concatenates the named skills' bodies (front-matter
// stripped) for injection into the system prompt.
func (l *Loader) LoadForContext(names []string) string {
	var parts []string
	for _, name := range names {
		content, ok := l.Load(name)
		if !ok {
			continue
		}
		_, body := parseFrontMatter(content)
		parts = append(parts, fmt.Sprintf("### Skill: %s\n\n%s", name, body))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// AlwaysSkills returns the names of available skills marked always.
func (l *Loader) AlwaysSkills() []string {
	var result []string
	for _, skill := range l.List(true) {
		if skill.Meta.Always {
			result = append(result, skill.Name)
		}
	}
	return result
}

// Summary renders the XML skills catalogue. mcpStatus maps MCP server names
// to connection state; skills that need a disconnected server are marked
// unavailable.
func (l *Loader) Summary(mcpStatus map[string]bool) string {
	all := l.List(false)
	if len(all) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("<skills>\n")
	for _, skill := range all {
		available := skill.Available()
		mcpAvailable := true
		if len(skill.Meta.MCPServers) > 0 && mcpStatus != nil {
			for _, server := range skill.Meta.MCPServers {
				if !mcpStatus[server] {
					mcpAvailable = false
					break
				}
			}
			available = available && mcpAvailable
		}

		fmt.Fprintf(&b, "  <skill available=%q>\n", fmt.Sprintf("%t", available))
		fmt.Fprintf(&b, "    <name>%s</name>\n", escapeXML(skill.Name))
		fmt.Fprintf(&b, "    <description>%s</description>\n", escapeXML(skill.Description()))
		fmt.Fprintf(&b, "    <location>%s</location>\n", escapeXML(skill.Path))
		if t := skill.Type(); t != TypeInstruction {
			fmt.Fprintf(&b, "    <type>%s</type>\n", escapeXML(t))
		}
		if len(skill.Meta.MCPServers) > 0 {
			fmt.Fprintf(&b, "    <mcp_servers>%s</mcp_servers>\n",
				escapeXML(strings.Join(skill.Meta.MCPServers, ", ")))
		}
		if !available {
			if missing := skill.MissingRequirements(); len(missing) > 0 {
				fmt.Fprintf(&b, "    <requires>%s</requires>\n",
					escapeXML(strings.Join(missing, ", ")))
			}
			if len(skill.Meta.MCPServers) > 0 && !mcpAvailable {
				fmt.Fprintf(&b, "    <requires>MCP servers: %s</requires>\n",
					escapeXML(strings.Join(skill.Meta.MCPServers, ", ")))
			}
		}
		b.WriteString("  </skill>\n")
	}
	b.WriteString("</skills>")
	return b.String()
}

// Snapshot captures skill identity and content hashes for reload diffing.
func (l *Loader) Snapshot() map[string]string {
	snap := map[string]string{}
	for _, skill := range l.List(false) {
		content, _ := l.Load(skill.Name)
		snap[skill.Name] = fmt.Sprintf("%s:%d", skill.Path, len(content))
	}
	return snap
}

// Diff compares two snapshots and reports added, removed, and modified
// skill names.
func Diff(before, after map[string]string) (added, removed, modified []string) {
	for name, sig := range after {
		old, ok := before[name]
		if !ok {
			added = append(added, name)
		} else if old != sig {
			modified = append(modified, name)
		}
	}
	for name := range before {
		if _, ok := after[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	sort.Strings(modified)
	return added, removed, modified
}
