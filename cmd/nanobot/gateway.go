package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lukelzlz/nanobot/internal/agent"
	"github.com/lukelzlz/nanobot/internal/bus"
	"github.com/lukelzlz/nanobot/internal/channels"
	"github.com/lukelzlz/nanobot/internal/config"
	"github.com/lukelzlz/nanobot/internal/cron"
	"github.com/lukelzlz/nanobot/internal/gitupdate"
	"github.com/lukelzlz/nanobot/internal/mcp"
	"github.com/lukelzlz/nanobot/internal/metrics"
	"github.com/lukelzlz/nanobot/internal/providers"
	"github.com/lukelzlz/nanobot/internal/skills"
)

const shutdownTimeout = 15 * time.Second

func buildGatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the full gateway: channels, agent loop, cron, MCP, git updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGateway(ctx, cfg, logger)
		},
	}
}

func runGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
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

	cronService.SetAgentRunner(cron.AgentRunnerFunc(func(ctx context.Context, job *cron.Job) (string, error) {
		channel, chatID := "", ""
		if job.Payload.Channel != nil {
			channel = *job.Payload.Channel
		}
		if job.Payload.To != nil {
			chatID = *job.Payload.To
		}
		return loop.ProcessDirect(ctx, job.Payload.Message, "cron:"+job.ID, channel, chatID)
	}))
	cronService.SetMessageSender(cron.MessageSenderFunc(func(ctx context.Context, channel, to, content string) error {
		return b.PublishOutbound(ctx, bus.OutboundMessage{Channel: channel, ChatID: to, Content: content})
	}))

	var gitService *gitupdate.Service
	if cfg.GitUpdate.Enabled {
		gitService, err = gitupdate.NewService(
			cfg.GitUpdate,
			filepath.Join(cfg.DataDir, "git_update", "state.json"),
			gitupdate.WithLogger(logger),
			gitupdate.WithNotifier(gitupdate.NotifierFunc(func(ctx context.Context, result gitupdate.UpdateResult) {
				_ = b.PublishInbound(ctx, bus.InboundMessage{
					Channel:  bus.ChannelSystem,
					SenderID: "git_update",
					Content:  describeUpdate(result),
				})
			})),
		)
		if err != nil {
			return err
		}
	}

	manager := channels.NewManager(cfg, b, logger)
	metricsServer := metrics.NewServer(cfg.Metrics, logger)
	watcher := skills.NewWatcher(cfg.Workspace, logger, func() {
		loop.ReloadContext()
	})

	loop.RegisterMCPTools(ctx)
	mcpClient.StartHealthCheck(ctx)

	b.StartDispatcher(ctx)
	manager.StartAll(ctx)
	if err := cronService.Start(ctx); err != nil {
		return err
	}
	if gitService != nil {
		if err := gitService.Start(ctx); err != nil {
			return err
		}
	}
	if err := metricsServer.Start(ctx); err != nil {
		return err
	}
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Warn("skills watcher stopped", "error", err)
		}
	}()

	logger.Info("gateway started",
		"channels", strings.Join(manager.Names(), ","),
		"provider", provider.Name(),
		"model", model,
	)

	runErr := loop.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := loop.Stop(shutdownCtx); err != nil {
		logger.Warn("agent loop shutdown timed out", "error", err)
	}
	mcpClient.DisconnectAll()
	if err := cronService.Stop(shutdownCtx); err != nil {
		logger.Warn("cron shutdown timed out", "error", err)
	}
	if gitService != nil {
		if err := gitService.Stop(shutdownCtx); err != nil {
			logger.Warn("git updater shutdown timed out", "error", err)
		}
	}
	manager.StopAll(shutdownCtx)
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Warn("metrics shutdown error", "error", err)
	}
	b.Close()

	logger.Info("gateway stopped")
	return runErr
}

func describeUpdate(result gitupdate.UpdateResult) string {
	switch result.Status {
	case gitupdate.StatusUpdated:
		msg := fmt.Sprintf("Repository %s updated to %s.", result.Path, shortCommit(result.NewCommit))
		if len(result.Changes) > 0 {
			msg += "\n" + strings.Join(result.Changes, "\n")
		}
		return msg
	case gitupdate.StatusConflict:
		return fmt.Sprintf("Repository %s update hit a conflict: %s", result.Path, result.Err)
	case gitupdate.StatusError:
		return fmt.Sprintf("Repository %s update failed: %s", result.Path, result.Err)
	default:
		return fmt.Sprintf("Repository %s: %s", result.Path, result.Status)
	}
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
