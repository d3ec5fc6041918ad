// Package main is the nanobot CLI: a personal agent gateway connecting chat
// channels (Telegram, Discord, Slack, WhatsApp, terminal) to LLM providers
// with filesystem, shell, cron, and MCP tooling.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lukelzlz/nanobot/internal/config"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nanobot",
		Short: "nanobot - personal agent gateway",
		Long: `nanobot routes messages from chat channels through an LLM agent loop
with filesystem, shell, cron, subagent, and MCP tools.

Channels: Telegram, Discord, Slack, WhatsApp, terminal
Providers: OpenAI-compatible endpoints, Anthropic`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+config.DefaultConfigPath()+")")

	rootCmd.AddCommand(
		buildGatewayCmd(),
		buildAgentCmd(),
		buildCronCmd(),
		buildStatusCmd(),
	)
	return rootCmd
}

// loadConfig reads the config file (or defaults when it does not exist) and
// installs the configured slog handler as the process default.
func loadConfig() (*config.Config, *slog.Logger, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
