// Package memory is the thin file store backing the agent's long-term memory:
// a MEMORY.md document plus daily notes named YYYY-MM-DD.md.
package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const longTermFile = "MEMORY.md"

// Store reads and appends the memory files under <workspace>/memory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at the workspace memory directory.
func NewStore(workspace string) *Store {
	return &Store{dir: filepath.Join(workspace, "memory")}
}

// Dir returns the memory directory path.
func (s *Store) Dir() string { return s.dir }

// LongTerm returns the MEMORY.md content, or "" when absent.
func (s *Store) LongTerm() string {
	data, err := os.ReadFile(filepath.Join(s.dir, longTermFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SetLongTerm replaces MEMORY.md.
func (s *Store) SetLongTerm(content string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, longTermFile), []byte(content), 0o644)
}

// DailyNote returns the note for the given day, or "" when absent.
func (s *Store) DailyNote(day time.Time) string {
	data, err := os.ReadFile(s.dailyPath(day))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// AppendDaily appends a timestamped entry to today's note.
func (s *Store) AppendDaily(content string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	path := s.dailyPath(time.Now())
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	entry := fmt.Sprintf("- %s %s\n", time.Now().Format("15:04"), content)
	_, err = f.WriteString(entry)
	return err
}

// Context assembles the memory block for the system prompt: long-term memory
// plus the most recent days of notes.
func (s *Store) Context(days int) string {
	if days <= 0 {
		days = 3
	}
	var parts []string
	if lt := s.LongTerm(); lt != "" {
		parts = append(parts, "## Long-term Memory\n"+lt)
	}
	now := time.Now()
	for i := 0; i < days; i++ {
		day := now.AddDate(0, 0, -i)
		if note := s.DailyNote(day); note != "" {
			parts = append(parts,
				fmt.Sprintf("## Notes %s\n%s", day.Format("2006-01-02"), note))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "# Memory\n\n" + strings.Join(parts, "\n\n")
}

func (s *Store) dailyPath(day time.Time) string {
	return filepath.Join(s.dir, day.Format("2006-01-02")+".md")
}
