package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// MaxReadSize caps read_file results.
	MaxReadSize = 5_000_000

	// MaxWriteSize caps write_file content.
	MaxWriteSize = 10_000_000
)

// FileTools bundles the workspace settings shared by the file tools.
type FileTools struct {
	Workspace           string
	RestrictToWorkspace bool
}

// resolve expands ~ and anchors relative paths at the workspace when
// confinement is on. The returned path is absolute.
func (f *FileTools) resolve(path string) string {
	p := expandHome(path)
	if !filepath.IsAbs(p) && f.RestrictToWorkspace && f.Workspace != "" {
		p = filepath.Join(f.Workspace, p)
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return p
}

// checkSafety rejects traversal sequences and, when confinement is on,
// paths that resolve outside the workspace. Returns an empty string when
// the path is acceptable.
func (f *FileTools) checkSafety(raw, resolved string) string {
	if strings.Contains(raw, "../") || strings.Contains(raw, "..\\") {
		return "Error: Path traversal detected (../ or ..\\ not allowed)"
	}
	if !f.RestrictToWorkspace || f.Workspace == "" {
		return ""
	}
	root, err := filepath.Abs(f.Workspace)
	if err != nil {
		return ""
	}
	if target, err := filepath.EvalSymlinks(root); err == nil {
		root = target
	}
	candidate := resolved
	if target, err := filepath.EvalSymlinks(candidate); err == nil {
		candidate = target
	} else {
		// The file may not exist yet; confine by the nearest existing parent.
		if target, err := filepath.EvalSymlinks(filepath.Dir(candidate)); err == nil {
			candidate = filepath.Join(target, filepath.Base(candidate))
		}
	}
	rel, err := filepath.Rel(root, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Sprintf("Error: Path outside workspace not allowed: %s", resolved)
	}
	return ""
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// ReadFileTool reads a file's contents.
type ReadFileTool struct {
	FS *FileTools
}

type readFileArgs struct {
	Path string `json:"path" jsonschema:"description=The file path to read"`
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file at the given path."
}

func (t *ReadFileTool) Parameters() json.RawMessage {
	return reflectSchema(readFileArgs{})
}

func (t *ReadFileTool) Execute(_ context.Context, args map[string]any) string {
	var a readFileArgs
	if err := decodeArgs(args, &a); err != nil {
		return errorf("invalid arguments: %v", err)
	}
	path := t.FS.resolve(a.Path)
	if msg := t.FS.checkSafety(a.Path, path); msg != "" {
		return msg
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: File not found: %s", a.Path)
		}
		if os.IsPermission(err) {
			return fmt.Sprintf("Error: Permission denied: %s", a.Path)
		}
		return fmt.Sprintf("Error reading file: %v", err)
	}
	if info.IsDir() {
		return fmt.Sprintf("Error: Not a file: %s", a.Path)
	}
	if info.Size() > MaxReadSize {
		return fmt.Sprintf("Error: File too large (%d bytes, max %d)", info.Size(), MaxReadSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Sprintf("Error: Permission denied: %s", a.Path)
		}
		return fmt.Sprintf("Error reading file: %v", err)
	}
	return string(data)
}

// WriteFileTool writes content to a file, creating parent directories.
type WriteFileTool struct {
	FS *FileTools
}

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"description=The file path to write to"`
	Content string `json:"content" jsonschema:"description=The content to write"`
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file at the given path. Creates parent directories if needed."
}

func (t *WriteFileTool) Parameters() json.RawMessage {
	return reflectSchema(writeFileArgs{})
}

func (t *WriteFileTool) Execute(_ context.Context, args map[string]any) string {
	var a writeFileArgs
	if err := decodeArgs(args, &a); err != nil {
		return errorf("invalid arguments: %v", err)
	}
	size := len(a.Content)
	if size > MaxWriteSize {
		return fmt.Sprintf("Error: Content too large (%d bytes, max %d)", size, MaxWriteSize)
	}
	path := t.FS.resolve(a.Path)
	if msg := t.FS.checkSafety(a.Path, filepath.Dir(path)); msg != "" {
		return msg
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Sprintf("Error writing file: %v", err)
	}
	if err := os.WriteFile(path, []byte(a.Content), 0o644); err != nil {
		if os.IsPermission(err) {
			return fmt.Sprintf("Error: Permission denied: %s", a.Path)
		}
		return fmt.Sprintf("Error writing file: %v", err)
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", size, a.Path)
}

// EditFileTool replaces one exact occurrence of old_text in a file.
type EditFileTool struct {
	FS *FileTools
}

type editFileArgs struct {
	Path    string `json:"path" jsonschema:"description=The file path to edit"`
	OldText string `json:"old_text" jsonschema:"description=The exact text to find and replace"`
	NewText string `json:"new_text" jsonschema:"description=The text to replace with"`
}

func (t *EditFileTool) Name() string { return "edit_file" }

func (t *EditFileTool) Description() string {
	return "Edit a file by replacing old_text with new_text. The old_text must exist exactly in the file."
}

func (t *EditFileTool) Parameters() json.RawMessage {
	return reflectSchema(editFileArgs{})
}

func (t *EditFileTool) Execute(_ context.Context, args map[string]any) string {
	var a editFileArgs
	if err := decodeArgs(args, &a); err != nil {
		return errorf("invalid arguments: %v", err)
	}
	path := t.FS.resolve(a.Path)
	if msg := t.FS.checkSafety(a.Path, path); msg != "" {
		return msg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: File not found: %s", a.Path)
		}
		if os.IsPermission(err) {
			return fmt.Sprintf("Error: Permission denied: %s", a.Path)
		}
		return fmt.Sprintf("Error editing file: %v", err)
	}
	content := string(data)
	count := strings.Count(content, a.OldText)
	if count == 0 {
		return "Error: old_text not found in file. Make sure it matches exactly."
	}
	if count > 1 {
		return fmt.Sprintf("Warning: old_text appears %d times. Please provide more context to make it unique.", count)
	}
	updated := strings.Replace(content, a.OldText, a.NewText, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		if os.IsPermission(err) {
			return fmt.Sprintf("Error: Permission denied: %s", a.Path)
		}
		return fmt.Sprintf("Error editing file: %v", err)
	}
	return fmt.Sprintf("Successfully edited %s", a.Path)
}

// ListDirTool lists directory entries with folder/file markers.
type ListDirTool struct {
	FS *FileTools
}

type listDirArgs struct {
	Path string `json:"path" jsonschema:"description=The directory path to list"`
}

func (t *ListDirTool) Name() string { return "list_dir" }

func (t *ListDirTool) Description() string {
	return "List the contents of a directory."
}

func (t *ListDirTool) Parameters() json.RawMessage {
	return reflectSchema(listDirArgs{})
}

func (t *ListDirTool) Execute(_ context.Context, args map[string]any) string {
	var a listDirArgs
	if err := decodeArgs(args, &a); err != nil {
		return errorf("invalid arguments: %v", err)
	}
	path := t.FS.resolve(a.Path)
	if msg := t.FS.checkSafety(a.Path, path); msg != "" {
		return msg
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("Error: Directory not found: %s", a.Path)
		}
		if os.IsPermission(err) {
			return fmt.Sprintf("Error: Permission denied: %s", a.Path)
		}
		return fmt.Sprintf("Error listing directory: %v", err)
	}
	if !info.IsDir() {
		return fmt.Sprintf("Error: Not a directory: %s", a.Path)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Sprintf("Error: Permission denied: %s", a.Path)
		}
		return fmt.Sprintf("Error listing directory: %v", err)
	}
	if len(entries) == 0 {
		return fmt.Sprintf("Directory %s is empty", a.Path)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		prefix := "📄 "
		if e.IsDir() {
			prefix = "📁 "
		}
		lines = append(lines, prefix+e.Name())
	}
	return strings.Join(lines, "\n")
}
