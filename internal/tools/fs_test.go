package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func workspaceFS(t *testing.T) (*FileTools, string) {
	t.Helper()
	ws := t.TempDir()
	return &FileTools{Workspace: ws, RestrictToWorkspace: true}, ws
}

func TestReadFile(t *testing.T) {
	fs, ws := workspaceFS(t)
	if err := os.WriteFile(filepath.Join(ws, "note.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	tool := &ReadFileTool{FS: fs}
	if got := tool.Execute(context.Background(), map[string]any{"path": "note.txt"}); got != "hello" {
		t.Fatalf("read = %q", got)
	}
	if got := tool.Execute(context.Background(), map[string]any{"path": "absent.txt"}); !strings.Contains(got, "File not found") {
		t.Fatalf("missing file = %q", got)
	}
}

func TestReadFileRejectsTraversal(t *testing.T) {
	fs, _ := workspaceFS(t)
	tool := &ReadFileTool{FS: fs}
	got := tool.Execute(context.Background(), map[string]any{"path": "../outside.txt"})
	if !strings.Contains(got, "Path traversal detected") {
		t.Fatalf("traversal = %q", got)
	}
}

func TestReadFileRejectsOutsideWorkspace(t *testing.T) {
	fs, _ := workspaceFS(t)
	outside := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	tool := &ReadFileTool{FS: fs}
	got := tool.Execute(context.Background(), map[string]any{"path": outside})
	if !strings.Contains(got, "outside workspace") {
		t.Fatalf("outside = %q", got)
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	fs, ws := workspaceFS(t)
	tool := &WriteFileTool{FS: fs}
	got := tool.Execute(context.Background(), map[string]any{
		"path":    "a/b/c.txt",
		"content": "nested",
	})
	if !strings.Contains(got, "Successfully wrote 6 bytes") {
		t.Fatalf("write = %q", got)
	}
	data, err := os.ReadFile(filepath.Join(ws, "a", "b", "c.txt"))
	if err != nil || string(data) != "nested" {
		t.Fatalf("file = %q, %v", data, err)
	}
}

func TestEditFile(t *testing.T) {
	fs, ws := workspaceFS(t)
	path := filepath.Join(ws, "f.txt")
	if err := os.WriteFile(path, []byte("alpha beta alpha"), 0o644); err != nil {
		t.Fatal(err)
	}
	tool := &EditFileTool{FS: fs}

	got := tool.Execute(context.Background(), map[string]any{
		"path": "f.txt", "old_text": "beta", "new_text": "gamma",
	})
	if !strings.Contains(got, "Successfully edited") {
		t.Fatalf("edit = %q", got)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "alpha gamma alpha" {
		t.Fatalf("content = %q", data)
	}

	got = tool.Execute(context.Background(), map[string]any{
		"path": "f.txt", "old_text": "alpha", "new_text": "x",
	})
	if !strings.Contains(got, "appears 2 times") {
		t.Fatalf("ambiguous edit = %q", got)
	}

	got = tool.Execute(context.Background(), map[string]any{
		"path": "f.txt", "old_text": "missing", "new_text": "x",
	})
	if !strings.Contains(got, "old_text not found") {
		t.Fatalf("missing old_text = %q", got)
	}
}

func TestListDir(t *testing.T) {
	fs, ws := workspaceFS(t)
	if err := os.MkdirAll(filepath.Join(ws, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ws, "z.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	tool := &ListDirTool{FS: fs}

	got := tool.Execute(context.Background(), map[string]any{"path": "."})
	if !strings.Contains(got, "📁 sub") || !strings.Contains(got, "📄 z.txt") {
		t.Fatalf("listing = %q", got)
	}

	got = tool.Execute(context.Background(), map[string]any{"path": "sub"})
	if !strings.Contains(got, "is empty") {
		t.Fatalf("empty dir = %q", got)
	}

	got = tool.Execute(context.Background(), map[string]any{"path": "z.txt"})
	if !strings.Contains(got, "Not a directory") {
		t.Fatalf("file as dir = %q", got)
	}
}
