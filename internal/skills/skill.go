// Package skills loads the markdown skill library: each skill is a directory
// holding a SKILL.md whose YAML front-matter declares its metadata. Workspace
// skills shadow builtin skills of the same name.
package skills

import (
	"os"
	"os/exec"
	"strings"

	"gopkg.in/yaml.v3"
)

// Skill types.
const (
	TypeInstruction = "instruction"
	TypeMCP         = "mcp"
	TypeHybrid      = "hybrid"
)

// Requirements declares the binaries and environment variables a skill needs.
type Requirements struct {
	Bins []string `yaml:"bins"`
	Env  []string `yaml:"env"`
}

// Metadata is the parsed SKILL.md front-matter.
type Metadata struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Always      bool         `yaml:"always"`
	Type        string       `yaml:"type"`
	MCPServers  []string     `yaml:"mcp_servers"`
	Requires    Requirements `yaml:"requires"`
}

// Skill is one loaded skill.
type Skill struct {
	Name   string
	Path   string
	Source string // "workspace" or "builtin"
	Meta   Metadata
}

// Type returns the validated skill type, defaulting to instruction.
func (s *Skill) Type() string {
	switch s.Meta.Type {
	case TypeMCP, TypeHybrid:
		return s.Meta.Type
	default:
		return TypeInstruction
	}
}

// Description falls back to the skill name when the front-matter has none.
func (s *Skill) Description() string {
	if s.Meta.Description != "" {
		return s.Meta.Description
	}
	return s.Name
}

// Available reports whether every declared binary and env requirement is met.
func (s *Skill) Available() bool {
	return len(s.MissingRequirements()) == 0
}

// MissingRequirements lists unmet requirements as "CLI: x" / "ENV: Y".
func (s *Skill) MissingRequirements() []string {
	var missing []string
	for _, bin := range s.Meta.Requires.Bins {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, "CLI: "+bin)
		}
	}
	for _, env := range s.Meta.Requires.Env {
		if os.Getenv(env) == "" {
			missing = append(missing, "ENV: "+env)
		}
	}
	return missing
}

// parseFrontMatter splits a SKILL.md into metadata and body. Content without
// front-matter yields zero metadata and the full body.
func parseFrontMatter(content string) (Metadata, string) {
	var meta Metadata
	if !strings.HasPrefix(content, "---\n") {
		return meta, content
	}
	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return meta, content
	}
	raw := rest[:end]
	body := rest[end+len("\n---"):]
	if idx := strings.Index(body, "\n"); idx >= 0 {
		body = body[idx+1:]
	} else {
		body = ""
	}
	if err := yaml.Unmarshal([]byte(raw), &meta); err != nil {
		return Metadata{}, content
	}
	return meta, strings.TrimSpace(body)
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
