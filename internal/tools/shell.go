package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"mvdan.cc/sh/v3/syntax"
)

// maxExecOutput caps what a single exec call feeds back to the model.
const maxExecOutput = 10000

// safeCommands is the basename allowlist for exec. Anything else given as a
// bare name still runs if it resolves on PATH; arbitrary paths do not.
var safeCommands = map[string]bool{
	"ls": true, "pwd": true, "cd": true, "cat": true, "head": true,
	"tail": true, "grep": true, "find": true, "echo": true, "date": true,
	"whoami": true, "id": true, "uname": true, "df": true, "du": true,
	"free": true, "ps": true, "top": true, "htop": true, "netstat": true,
	"ss": true, "ping": true, "traceroute": true, "curl": true, "wget": true,
	"git": true, "python": true, "python3": true, "pip": true, "pip3": true,
	"npm": true, "node": true, "cargo": true, "rustc": true, "go": true,
	"java": true, "javac": true, "mvn": true, "gradle": true, "docker": true,
	"docker-compose": true, "kubectl": true, "terraform": true,
	"ansible": true, "make": true, "cmake": true, "gcc": true, "g++": true,
	"clang": true, "rustup": true, "gem": true, "bundle": true,
	"composer": true, "yarn": true, "pytest": true, "coverage": true,
	"black": true, "ruff": true, "mypy": true, "pylint": true,
	"flake8": true, "sed": true, "awk": true, "sort": true, "uniq": true,
	"wc": true, "cut": true, "tr": true, "xargs": true, "timeout": true,
	"watch": true, "tree": true, "file": true, "stat": true,
	"readlink": true, "realpath": true, "basename": true, "dirname": true,
	"md5sum": true, "sha1sum": true, "sha256sum": true, "base64": true,
	"hexdump": true, "jq": true, "yq": true, "rsync": true, "scp": true,
	"ssh": true, "tar": true, "zip": true, "unzip": true, "gzip": true,
	"gunzip": true, "xz": true, "7z": true, "chmod": true, "chown": true,
	"chgrp": true, "ln": true, "cp": true, "mv": true, "mkdir": true,
	"touch": true, "rm": true, "rmdir": true,
}

// shellFeatureTokens mark commands that would need a shell to interpret.
// Exec never spawns a shell, so such commands are rejected up front.
var shellFeatureTokens = []string{
	"|", "&", ";", "$", "`", "\\", ">", "<", "\n", "\r", "\t",
}

// denyPatterns block destructive commands before anything is parsed.
// Redirection is handled separately: outputRedirect matches any `>` and
// the guard then permits only a /dev/null target.
var (
	denyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\brm\s+-[rf]{1,2}\b`),
		regexp.MustCompile(`\bdel\s+/[fq]\b`),
		regexp.MustCompile(`\brmdir\s+/s\b`),
		regexp.MustCompile(`\b(format|mkfs|diskpart)\b`),
		regexp.MustCompile(`\bdd\s+if=`),
		regexp.MustCompile(`>\s*/dev/sd`),
		regexp.MustCompile(`\b(shutdown|reboot|poweroff)\b`),
		regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),
		regexp.MustCompile(`\|`),
		regexp.MustCompile(`\$\(`),
		regexp.MustCompile("`"),
		regexp.MustCompile(`;\s*\w`),
		regexp.MustCompile(`&&`),
		regexp.MustCompile(`\|\|`),
		regexp.MustCompile(`<\s*`),
	}
	outputRedirect = regexp.MustCompile(`>\s*(\S*)`)

	traversalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\.\.`),
		regexp.MustCompile(`~[^/]`),
		regexp.MustCompile(`\$HOME`),
		regexp.MustCompile(`\$USER`),
		regexp.MustCompile(`^/`),
		regexp.MustCompile(`^[A-Za-z]:\\`),
	}
)

// ExecTool runs a single program without a shell. Commands are word-split,
// checked against the deny patterns and allowlist, and killed on timeout.
type ExecTool struct {
	Timeout             time.Duration
	WorkingDir          string
	RestrictToWorkspace bool
	AllowPatterns       []string
}

type execArgs struct {
	Command    string `json:"command" jsonschema:"description=The shell command to execute"`
	WorkingDir string `json:"working_dir,omitempty" jsonschema:"description=Optional working directory for the command"`
}

func (t *ExecTool) Name() string { return "exec" }

func (t *ExecTool) Description() string {
	return "Execute a shell command and return its output. Use with caution."
}

func (t *ExecTool) Parameters() json.RawMessage {
	return reflectSchema(execArgs{})
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]any) string {
	var a execArgs
	if err := decodeArgs(args, &a); err != nil {
		return errorf("invalid arguments: %v", err)
	}

	cwd := a.WorkingDir
	if cwd == "" {
		cwd = t.WorkingDir
	}
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		}
	}

	if msg := t.guard(a.Command, cwd); msg != "" {
		return msg
	}

	argv, ok := parseCommand(a.Command)
	if !ok {
		return "Error: Command contains shell features (pipes, redirections, command " +
			"substitution) or uses an unsafe command. For complex operations, " +
			"use multiple exec calls instead."
	}

	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		cwdAbs = cwd
	}
	if info, err := os.Stat(cwdAbs); err != nil || !info.IsDir() {
		return fmt.Sprintf("Error: Working directory does not exist or is not a directory: %s", cwd)
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = cwdAbs
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("Error: Command timed out after %d seconds", int(timeout.Seconds()))
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			if errors.Is(runErr, exec.ErrNotFound) {
				return fmt.Sprintf("Error: Command not found: %s", argv[0])
			}
			if os.IsPermission(runErr) {
				return fmt.Sprintf("Error: Permission denied executing: %s", argv[0])
			}
			return fmt.Sprintf("Error executing command: %v", runErr)
		}
	}

	var parts []string
	if stdout.Len() > 0 {
		parts = append(parts, stdout.String())
	}
	if s := stderr.String(); strings.TrimSpace(s) != "" {
		parts = append(parts, "STDERR:\n"+s)
	}
	if code := cmd.ProcessState.ExitCode(); code != 0 {
		parts = append(parts, fmt.Sprintf("\nExit code: %d", code))
	}

	result := "(no output)"
	if len(parts) > 0 {
		result = strings.Join(parts, "\n")
	}
	if len(result) > maxExecOutput {
		result = result[:maxExecOutput] +
			fmt.Sprintf("\n... (truncated, %d more chars)", len(result)-maxExecOutput)
	}
	return result
}

// guard applies the deny patterns, the optional allowlist, and the
// workspace restriction. Returns an empty string when the command passes.
func (t *ExecTool) guard(command, cwd string) string {
	cmd := strings.TrimSpace(command)
	lower := strings.ToLower(cmd)

	for _, p := range denyPatterns {
		if p.MatchString(lower) {
			return "Error: Command blocked by safety guard (dangerous pattern detected)"
		}
	}
	// Redirection is only tolerated when the target is /dev/null.
	for _, m := range outputRedirect.FindAllStringSubmatch(lower, -1) {
		if !strings.HasPrefix(m[1], "/dev/null") {
			return "Error: Command blocked by safety guard (dangerous pattern detected)"
		}
	}

	if len(t.AllowPatterns) > 0 {
		allowed := false
		for _, p := range t.AllowPatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				continue
			}
			if re.MatchString(lower) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "Error: Command blocked by safety guard (not in allowlist)"
		}
	}

	if t.RestrictToWorkspace {
		for _, p := range traversalPatterns {
			if p.MatchString(cmd) {
				return "Error: Command blocked by safety guard (path traversal detected)"
			}
		}

		cwdAbs, err := filepath.Abs(cwd)
		if err != nil {
			return "Error: Command blocked by safety guard (unable to validate paths)"
		}
		argv, err := splitWords(cmd)
		if err != nil {
			return "Error: Command blocked by safety guard (unable to validate paths)"
		}
		for _, arg := range argv {
			if strings.HasPrefix(arg, "-") {
				continue
			}
			if _, statErr := os.Stat(arg); statErr != nil {
				continue
			}
			resolved, err := filepath.Abs(arg)
			if err != nil {
				continue
			}
			if target, err := filepath.EvalSymlinks(resolved); err == nil {
				resolved = target
			}
			rel, err := filepath.Rel(cwdAbs, resolved)
			if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return "Error: Command blocked by safety guard (path outside working dir)"
			}
		}
	}

	return ""
}

// parseCommand word-splits a command and vets the program name. Returns
// false for shell features, unparseable input, or a disallowed path.
func parseCommand(command string) ([]string, bool) {
	for _, tok := range shellFeatureTokens {
		if strings.Contains(command, tok) {
			return nil, false
		}
	}
	argv, err := splitWords(command)
	if err != nil || len(argv) == 0 {
		return nil, false
	}
	name := argv[0]
	base := filepath.Base(name)
	if !safeCommands[base] {
		if strings.ContainsAny(name, "/\\") {
			return nil, false
		}
	}
	return argv, true
}

// splitWords parses command as one plain shell command and returns its argv
// with quoting resolved. Expansions (variables, substitutions), redirections,
// assignments, and anything beyond a single simple command are errors, as are
// unterminated quotes.
func splitWords(command string) ([]string, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, err
	}
	if len(file.Stmts) == 0 {
		return nil, nil
	}
	if len(file.Stmts) > 1 {
		return nil, errors.New("multiple commands")
	}
	stmt := file.Stmts[0]
	call, ok := stmt.Cmd.(*syntax.CallExpr)
	if !ok || stmt.Negated || stmt.Background || len(stmt.Redirs) > 0 || len(call.Assigns) > 0 {
		return nil, errors.New("not a plain command")
	}
	argv := make([]string, 0, len(call.Args))
	for _, word := range call.Args {
		lit, err := wordLiteral(word)
		if err != nil {
			return nil, err
		}
		argv = append(argv, lit)
	}
	return argv, nil
}

// wordLiteral flattens a parsed word into its literal value. Any part that
// would expand at run time fails the split.
func wordLiteral(w *syntax.Word) (string, error) {
	var sb strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			s, err := unescapeLit(p.Value, false)
			if err != nil {
				return "", err
			}
			sb.WriteString(s)
		case *syntax.SglQuoted:
			if p.Dollar {
				return "", errors.New("unsupported quoting")
			}
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok {
					return "", errors.New("expansion in word")
				}
				s, err := unescapeLit(lit.Value, true)
				if err != nil {
					return "", err
				}
				sb.WriteString(s)
			}
		default:
			return "", errors.New("expansion in word")
		}
	}
	return sb.String(), nil
}

// unescapeLit resolves backslash escapes the parser leaves in literal values.
// Inside double quotes only \$ \` \" \\ collapse; other backslashes stay
// literal there.
func unescapeLit(s string, quoted bool) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var sb strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			if quoted && !strings.ContainsRune("$`\"\\", r) {
				sb.WriteRune('\\')
			}
			sb.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		sb.WriteRune(r)
	}
	if escaped {
		return "", errors.New("trailing escape")
	}
	return sb.String(), nil
}
