package gitupdate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	gitTimeout  = 60 * time.Second
	hookTimeout = 5 * time.Minute
)

// GitRunner runs git commands inside a repository. Injectable for tests.
type GitRunner interface {
	Git(ctx context.Context, dir string, args ...string) (stdout string, exitCode int, err error)
}

// GitRunnerFunc adapts a function to the GitRunner interface.
type GitRunnerFunc func(ctx context.Context, dir string, args ...string) (string, int, error)

func (f GitRunnerFunc) Git(ctx context.Context, dir string, args ...string) (string, int, error) {
	return f(ctx, dir, args...)
}

type execRunner struct{}

func (execRunner) Git(ctx context.Context, dir string, args ...string) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := strings.TrimSpace(stdout.String())
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out, -1, fmt.Errorf("git %s timed out after %s", args[0], gitTimeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = out
			}
			return out, exitErr.ExitCode(), fmt.Errorf("git %s: %s", args[0], msg)
		}
		return out, -1, err
	}
	return out, 0, nil
}

// runHooks executes the repo's on_update or on_conflict commands through the
// shell, one at a time, and returns a human-readable result per command.
func runHooks(ctx context.Context, dir string, commands []string) []string {
	results := make([]string, 0, len(commands))
	for _, cmdStr := range commands {
		hookCtx, cancel := context.WithTimeout(ctx, hookTimeout)
		cmd := exec.CommandContext(hookCtx, "sh", "-c", cmdStr)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		cancel()

		text := strings.TrimSpace(string(out))
		switch {
		case err != nil && text != "":
			results = append(results, fmt.Sprintf("Command '%s' failed: %s", cmdStr, text))
		case err != nil:
			results = append(results, fmt.Sprintf("Command '%s' error: %v", cmdStr, err))
		default:
			results = append(results, fmt.Sprintf("Command '%s': %s", cmdStr, text))
		}
	}
	return results
}
