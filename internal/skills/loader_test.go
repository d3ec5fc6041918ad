package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSkill(t *testing.T, dir, name, content string) {
	t.Helper()
	skillDir := filepath.Join(dir, name)
	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseFrontMatter(t *testing.T) {
	meta, body := parseFrontMatter("---\nname: github\ndescription: GitHub helper\nalways: true\n---\n# Usage\nDo things.")
	if meta.Name != "github" || meta.Description != "GitHub helper" || !meta.Always {
		t.Fatalf("meta = %+v", meta)
	}
	if body != "# Usage\nDo things." {
		t.Fatalf("body = %q", body)
	}

	meta, body = parseFrontMatter("just a body")
	if meta.Name != "" || body != "just a body" {
		t.Fatalf("no front-matter: %+v %q", meta, body)
	}

	// Broken YAML keeps the raw content.
	_, body = parseFrontMatter("---\n: : :\n---\nrest")
	if body != "---\n: : :\n---\nrest" {
		t.Fatalf("broken yaml body = %q", body)
	}
}

func TestWorkspaceShadowsBuiltin(t *testing.T) {
	ws := t.TempDir()
	builtin := t.TempDir()
	writeSkill(t, builtin, "weather", "---\ndescription: builtin weather\n---\nbuiltin body")
	writeSkill(t, builtin, "calc", "---\ndescription: calculator\n---\ncalc body")
	writeSkill(t, filepath.Join(ws, "skills"), "weather", "---\ndescription: my weather\n---\nws body")

	loader := NewLoader(ws, builtin)
	list := loader.List(false)
	if len(list) != 2 {
		t.Fatalf("skill count = %d", len(list))
	}
	// Sorted by name: calc before weather.
	if list[0].Name != "calc" || list[0].Source != "builtin" {
		t.Fatalf("first skill = %+v", list[0])
	}
	if list[1].Name != "weather" || list[1].Source != "workspace" {
		t.Fatalf("weather not shadowed: %+v", list[1])
	}
	if list[1].Meta.Description != "my weather" {
		t.Fatalf("description = %q", list[1].Meta.Description)
	}
}

func TestAvailabilityRequirements(t *testing.T) {
	s := &Skill{Name: "x", Meta: Metadata{Requires: Requirements{
		Bins: []string{"definitely-not-a-real-binary-48151623"},
		Env:  []string{"NANOBOT_TEST_UNSET_VAR"},
	}}}
	os.Unsetenv("NANOBOT_TEST_UNSET_VAR")
	missing := s.MissingRequirements()
	if len(missing) != 2 {
		t.Fatalf("missing = %v", missing)
	}
	if !strings.HasPrefix(missing[0], "CLI: ") || !strings.HasPrefix(missing[1], "ENV: ") {
		t.Fatalf("missing = %v", missing)
	}
	if s.Available() {
		t.Fatal("skill with unmet requirements reported available")
	}
}

func TestSummaryMarksMCPUnavailable(t *testing.T) {
	ws := t.TempDir()
	writeSkill(t, filepath.Join(ws, "skills"), "github",
		"---\ndescription: GitHub ops\ntype: mcp\nmcp_servers: [github]\n---\nbody")

	loader := NewLoader(ws, "")
	summary := loader.Summary(map[string]bool{"github": false})
	if !strings.Contains(summary, `<skill available="false">`) {
		t.Fatalf("summary = %q", summary)
	}
	if !strings.Contains(summary, "<requires>MCP servers: github</requires>") {
		t.Fatalf("summary missing requires: %q", summary)
	}

	summary = loader.Summary(map[string]bool{"github": true})
	if !strings.Contains(summary, `<skill available="true">`) {
		t.Fatalf("connected summary = %q", summary)
	}
}

func TestSummaryEscapesXML(t *testing.T) {
	ws := t.TempDir()
	writeSkill(t, filepath.Join(ws, "skills"), "tricky",
		"---\ndescription: a <b> & c\n---\nbody")
	summary := NewLoader(ws, "").Summary(nil)
	if !strings.Contains(summary, "a &lt;b&gt; &amp; c") {
		t.Fatalf("summary = %q", summary)
	}
}

func TestLoadForContextStripsFrontMatter(t *testing.T) {
	ws := t.TempDir()
	writeSkill(t, filepath.Join(ws, "skills"), "notes", "---\nalways: true\n---\nTake notes.")
	loader := NewLoader(ws, "")

	always := loader.AlwaysSkills()
	if len(always) != 1 || always[0] != "notes" {
		t.Fatalf("always = %v", always)
	}
	ctx := loader.LoadForContext(always)
	if !strings.Contains(ctx, "### Skill: notes") || !strings.Contains(ctx, "Take notes.") {
		t.Fatalf("context = %q", ctx)
	}
	if strings.Contains(ctx, "always: true") {
		t.Fatalf("front-matter leaked: %q", ctx)
	}
}

func TestDiff(t *testing.T) {
	before := map[string]string{"a": "p:1", "b": "p:2", "c": "p:3"}
	after := map[string]string{"b": "p:2", "c": "p:9", "d": "p:4"}
	added, removed, modified := Diff(before, after)
	if len(added) != 1 || added[0] != "d" {
		t.Fatalf("added = %v", added)
	}
	if len(removed) != 1 || removed[0] != "a" {
		t.Fatalf("removed = %v", removed)
	}
	if len(modified) != 1 || modified[0] != "c" {
		t.Fatalf("modified = %v", modified)
	}
}
