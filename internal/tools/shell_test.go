package tools

import (
	"context"
	"strings"
	"testing"
	"time"
)

func runExec(t *testing.T, tool *ExecTool, command string) string {
	t.Helper()
	return tool.Execute(context.Background(), map[string]any{"command": command})
}

func TestExecSimpleCommand(t *testing.T) {
	tool := &ExecTool{WorkingDir: t.TempDir()}
	got := runExec(t, tool, "echo hello world")
	if !strings.Contains(got, "hello world") {
		t.Fatalf("output = %q", got)
	}
}

func TestExecNoOutput(t *testing.T) {
	tool := &ExecTool{WorkingDir: t.TempDir()}
	if got := runExec(t, tool, "touch marker"); got != "(no output)" {
		t.Fatalf("output = %q", got)
	}
}

func TestExecReportsExitCode(t *testing.T) {
	tool := &ExecTool{WorkingDir: t.TempDir()}
	got := runExec(t, tool, "ls /definitely-not-here-12345")
	if !strings.Contains(got, "Exit code:") {
		t.Fatalf("output = %q", got)
	}
}

func TestExecGuardBlocksDangerous(t *testing.T) {
	tool := &ExecTool{WorkingDir: t.TempDir()}
	for _, cmd := range []string{
		"rm -rf /",
		"echo hi | cat",
		"echo $(whoami)",
		"cat a; rm b",
		"ls && pwd",
		"dd if=/dev/zero of=/dev/sda",
		"shutdown now",
		"cat < secrets",
	} {
		got := runExec(t, tool, cmd)
		if !strings.Contains(got, "blocked by safety guard") && !strings.Contains(got, "shell features") {
			t.Errorf("%q not blocked: %q", cmd, got)
		}
	}
}

func TestExecRedirectOnlyDevNull(t *testing.T) {
	tool := &ExecTool{WorkingDir: t.TempDir()}
	if got := runExec(t, tool, "echo hi > /tmp/out"); !strings.Contains(got, "blocked by safety guard") {
		t.Fatalf("redirect not blocked: %q", got)
	}
	// A /dev/null target passes the guard; the shell-feature check then
	// still refuses the redirect token itself.
	got := runExec(t, tool, "echo hi > /dev/null")
	if strings.Contains(got, "dangerous pattern") {
		t.Fatalf("dev/null redirect hit the deny rule: %q", got)
	}
}

func TestExecRejectsCommandPaths(t *testing.T) {
	tool := &ExecTool{WorkingDir: t.TempDir()}
	got := runExec(t, tool, "/usr/local/bin/evil-helper --do-things")
	if !strings.Contains(got, "shell features") {
		t.Fatalf("path command = %q", got)
	}
}

func TestExecAllowlist(t *testing.T) {
	tool := &ExecTool{WorkingDir: t.TempDir(), AllowPatterns: []string{`^echo\b`}}
	if got := runExec(t, tool, "echo ok"); !strings.Contains(got, "ok") {
		t.Fatalf("allowed command = %q", got)
	}
	if got := runExec(t, tool, "date"); !strings.Contains(got, "not in allowlist") {
		t.Fatalf("disallowed command = %q", got)
	}
}

func TestExecWorkspaceRestriction(t *testing.T) {
	tool := &ExecTool{WorkingDir: t.TempDir(), RestrictToWorkspace: true}
	for _, cmd := range []string{
		"cat ../secrets.txt",
		"cat /etc/passwd",
		"ls ~root",
		"echo $HOME",
	} {
		got := runExec(t, tool, cmd)
		if !strings.Contains(got, "blocked by safety guard") {
			t.Errorf("%q not blocked: %q", cmd, got)
		}
	}
}

func TestExecTimeout(t *testing.T) {
	tool := &ExecTool{WorkingDir: t.TempDir(), Timeout: 100 * time.Millisecond}
	got := runExec(t, tool, "sleep 5")
	if !strings.Contains(got, "timed out") {
		t.Fatalf("output = %q", got)
	}
}

func TestExecMissingWorkingDir(t *testing.T) {
	tool := &ExecTool{WorkingDir: "/definitely/not/a/dir"}
	got := runExec(t, tool, "echo hi")
	if !strings.Contains(got, "Working directory does not exist") {
		t.Fatalf("output = %q", got)
	}
}

func TestSplitWords(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{`echo hello world`, []string{"echo", "hello", "world"}},
		{`echo 'a b' c`, []string{"echo", "a b", "c"}},
		{`echo "x y"`, []string{"echo", "x y"}},
		{`echo "quoted \" inner"`, []string{"echo", `quoted " inner`}},
	}
	for _, tc := range cases {
		got, err := splitWords(tc.in)
		if err != nil {
			t.Errorf("%q: %v", tc.in, err)
			continue
		}
		if len(got) != len(tc.want) {
			t.Errorf("%q: got %v", tc.in, got)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("%q: word %d = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
	for _, in := range []string{
		`echo "unbalanced`,
		`echo $HOME`,
		`echo $(whoami)`,
		`echo hi > out`,
		`FOO=bar env`,
		`ls; pwd`,
	} {
		if _, err := splitWords(in); err == nil {
			t.Errorf("%q accepted", in)
		}
	}
}
