package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// DirectFunc runs one synchronous agent turn (Loop.ProcessDirect).
type DirectFunc func(ctx context.Context, content, sessionKey, channel, chatID string) (string, error)

// CLI is the interactive terminal front end. Unlike the platform adapters it
// bypasses the bus and talks to the agent synchronously.
type CLI struct {
	process DirectFunc
	logger  *slog.Logger
	in      io.Reader
	out     io.Writer
}

// NewCLI creates a REPL bound to stdin/stdout.
func NewCLI(process DirectFunc, logger *slog.Logger) *CLI {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLI{
		process: process,
		logger:  logger.With("channel", "cli"),
		in:      os.Stdin,
		out:     os.Stdout,
	}
}

// Run reads lines until EOF, "exit", or context cancellation. The prompt is
// only printed when stdin is a terminal, so piped input stays clean.
func (c *CLI) Run(ctx context.Context) error {
	interactive := false
	if f, ok := c.in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	if interactive {
		fmt.Fprintln(c.out, "nanobot ready. Type 'exit' to quit.")
	}

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		if interactive {
			fmt.Fprint(c.out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		reply, err := c.process(ctx, line, "cli:direct", "cli", "direct")
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintln(c.out, reply)
	}
}

// Ask runs a single turn and returns the reply (one-shot `agent -m`).
func (c *CLI) Ask(ctx context.Context, content string) (string, error) {
	return c.process(ctx, content, "cli:direct", "cli", "direct")
}
