package memory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLongTermRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	if got := store.LongTerm(); got != "" {
		t.Fatalf("empty store returned %q", got)
	}
	if err := store.SetLongTerm("likes coffee\n"); err != nil {
		t.Fatal(err)
	}
	if got := store.LongTerm(); got != "likes coffee" {
		t.Fatalf("long term = %q", got)
	}
}

func TestAppendDaily(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := store.AppendDaily("first"); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendDaily("second"); err != nil {
		t.Fatal(err)
	}
	note := store.DailyNote(time.Now())
	if !strings.Contains(note, "first") || !strings.Contains(note, "second") {
		t.Fatalf("daily note = %q", note)
	}
	if strings.Index(note, "first") > strings.Index(note, "second") {
		t.Fatal("entries out of order")
	}
}

func TestContextAssembly(t *testing.T) {
	ws := t.TempDir()
	store := NewStore(ws)
	if got := store.Context(3); got != "" {
		t.Fatalf("empty context = %q", got)
	}

	if err := store.SetLongTerm("remember this"); err != nil {
		t.Fatal(err)
	}
	yesterday := time.Now().AddDate(0, 0, -1)
	notePath := filepath.Join(ws, "memory", yesterday.Format("2006-01-02")+".md")
	if err := os.WriteFile(notePath, []byte("- 09:00 met Sam\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := store.Context(3)
	if !strings.HasPrefix(got, "# Memory") {
		t.Fatalf("context prefix: %q", got)
	}
	if !strings.Contains(got, "## Long-term Memory\nremember this") {
		t.Fatalf("missing long term block: %q", got)
	}
	if !strings.Contains(got, "## Notes "+yesterday.Format("2006-01-02")) {
		t.Fatalf("missing daily block: %q", got)
	}
}

func TestContextSkipsOldNotes(t *testing.T) {
	ws := t.TempDir()
	store := NewStore(ws)
	old := time.Now().AddDate(0, 0, -10)
	notePath := filepath.Join(ws, "memory", old.Format("2006-01-02")+".md")
	if err := os.MkdirAll(filepath.Dir(notePath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(notePath, []byte("ancient\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := store.Context(3); got != "" {
		t.Fatalf("old note leaked into context: %q", got)
	}
}
