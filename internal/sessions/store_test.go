package sessions

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/lukelzlz/nanobot/internal/providers"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	sess, err := store.GetOrCreate("telegram:42")
	if err != nil {
		t.Fatal(err)
	}
	sess.AppendUser("hello")
	sess.AppendAssistant("hi there", nil)
	if err := store.Save(sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Fresh store, no cache.
	store2, err := NewStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	reloaded, err := store2.GetOrCreate("telegram:42")
	if err != nil {
		t.Fatal(err)
	}
	history := reloaded.History()
	if len(history) != 2 {
		t.Fatalf("history length = %d", len(history))
	}
	if history[0].Role != providers.RoleUser || history[0].Content != "hello" {
		t.Fatalf("first message = %+v", history[0])
	}
	if history[1].Role != providers.RoleAssistant || history[1].Content != "hi there" {
		t.Fatalf("second message = %+v", history[1])
	}
}

func TestGetOrCreateCaches(t *testing.T) {
	store := newTestStore(t)
	a, _ := store.GetOrCreate("k")
	b, _ := store.GetOrCreate("k")
	if a != b {
		t.Fatal("expected the same session instance")
	}
}

func TestToolResultRoundTrip(t *testing.T) {
	store := newTestStore(t)
	sess, _ := store.GetOrCreate("k")
	sess.AppendAssistant("", []providers.ToolCall{{ID: "call_1", Name: "exec"}})
	sess.AppendToolResult("call_1", "exec", "done")
	if err := store.Save(sess); err != nil {
		t.Fatal(err)
	}

	msgs := sess.History()
	if msgs[0].ToolCalls[0].ID != "call_1" {
		t.Fatalf("tool call id = %q", msgs[0].ToolCalls[0].ID)
	}
	if msgs[1].Role != providers.RoleTool || msgs[1].ToolCallID != "call_1" {
		t.Fatalf("tool result = %+v", msgs[1])
	}
}

func TestCorruptFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := NewStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := store.GetOrCreate("bad")
	if err != nil {
		t.Fatalf("corrupt session: %v", err)
	}
	if len(sess.History()) != 0 {
		t.Fatalf("expected empty history, got %d", len(sess.History()))
	}
}

func TestKeysAndSanitize(t *testing.T) {
	store := newTestStore(t)
	for _, key := range []string{"telegram:42", "cli:direct"} {
		sess, _ := store.GetOrCreate(key)
		if err := store.Save(sess); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := store.Keys()
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(keys)
	want := []string{"cli_direct", "telegram_42"}
	if len(keys) != 2 || keys[0] != want[0] || keys[1] != want[1] {
		t.Fatalf("keys = %v", keys)
	}
}
