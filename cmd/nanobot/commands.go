package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lukelzlz/nanobot/internal/agent"
	"github.com/lukelzlz/nanobot/internal/bus"
	"github.com/lukelzlz/nanobot/internal/channels"
	"github.com/lukelzlz/nanobot/internal/cron"
	"github.com/lukelzlz/nanobot/internal/gitupdate"
	"github.com/lukelzlz/nanobot/internal/mcp"
	"github.com/lukelzlz/nanobot/internal/providers"
)

func buildAgentCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Talk to the agent from the terminal (no channel adapters)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			provider, model, err := providers.FromConfig(cfg)
			if err != nil {
				return err
			}
			b := bus.New(logger)
			mcpClient := mcp.NewClient(cfg.MCP, logger)
			cronService := cron.NewService(
				filepath.Join(cfg.DataDir, "cron", "jobs.json"),
				cron.WithLogger(logger),
			)
			loop, err := agent.New(cfg, b, provider, model, cronService, mcpClient, logger)
			if err != nil {
				return err
			}
			loop.RegisterMCPTools(ctx)
			defer mcpClient.DisconnectAll()

			// Tool-initiated messages land on the cli channel; print them.
			b.Subscribe("cli", func(ctx context.Context, msg bus.OutboundMessage) {
				fmt.Println(msg.Content)
			})
			b.StartDispatcher(ctx)
			defer b.Close()

			cli := channels.NewCLI(loop.ProcessDirect, logger)
			if message != "" {
				reply, err := cli.Ask(ctx, message)
				if err != nil {
					return err
				}
				fmt.Println(reply)
				return nil
			}
			return cli.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "send a single message and exit")
	return cmd
}

func buildCronCmd() *cobra.Command {
	var includeDisabled bool
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			service := cron.NewService(filepath.Join(cfg.DataDir, "cron", "jobs.json"))
			jobs, err := service.ListJobs(includeDisabled)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("No jobs scheduled.")
				return nil
			}
			for _, job := range jobs {
				state := "enabled"
				if !job.Enabled {
					state = "disabled"
				}
				fmt.Printf("%s  %-20s %-24s %s  next: %s  last: %s\n",
					job.ID, job.Name, job.Schedule.Describe(), state,
					formatMs(job.State.NextRunAtMs), strOr(job.State.LastStatus, "never"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&includeDisabled, "all", "a", false, "include disabled jobs")
	return cmd
}

func buildStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configured providers, channels, MCP servers, and git repos",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			provider, model, err := providers.FromConfig(cfg)
			if err != nil {
				fmt.Printf("Provider: unconfigured (%v)\n", err)
			} else {
				fmt.Printf("Provider: %s (model %s)\n", provider.Name(), model)
			}
			fmt.Printf("Workspace: %s\n", cfg.Workspace)
			fmt.Printf("Data dir: %s\n", cfg.DataDir)

			fmt.Println("Channels:")
			for name, enabled := range map[string]bool{
				"telegram": cfg.Channels.Telegram.Enabled,
				"discord":  cfg.Channels.Discord.Enabled,
				"slack":    cfg.Channels.Slack.Enabled,
				"whatsapp": cfg.Channels.WhatsApp.Enabled,
			} {
				if enabled {
					fmt.Printf("  %s: enabled\n", name)
				}
			}

			if len(cfg.MCP.Servers) > 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				mcpClient := mcp.NewClient(cfg.MCP, logger)
				for _, server := range cfg.MCP.Servers {
					if server.Enabled {
						if err := mcpClient.Connect(ctx, server); err != nil {
							logger.Warn("mcp connect failed", "server", server.Name, "error", err)
						}
					}
				}
				defer mcpClient.DisconnectAll()
				if summary := mcpClient.StatusSummary(); summary != "" {
					fmt.Println(summary)
				}
			}

			if cfg.GitUpdate.Enabled {
				service, err := gitupdate.NewService(cfg.GitUpdate,
					filepath.Join(cfg.DataDir, "git_update", "state.json"))
				if err != nil {
					return err
				}
				fmt.Println("Git repositories:")
				for _, repo := range service.Status() {
					fmt.Printf("  %s (%s)  status: %s  updates: %d\n",
						repo.Path, repo.Branch,
						strOr(repo.State.LastStatus, "never"), repo.State.UpdatesApplied)
				}
			}
			return nil
		},
	}
}

func formatMs(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return time.UnixMilli(*ms).Format("2006-01-02 15:04")
}

func strOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
