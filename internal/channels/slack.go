package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/lukelzlz/nanobot/internal/bus"
	"github.com/lukelzlz/nanobot/internal/config"
)

// SlackChannel receives events over Socket Mode, so no public endpoint is
// needed.
type SlackChannel struct {
	cfg    config.SlackConfig
	bus    *bus.MessageBus
	logger *slog.Logger

	api    *slack.Client
	socket *socketmode.Client
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSlackChannel creates the adapter; the socket opens on Start.
func NewSlackChannel(cfg config.SlackConfig, b *bus.MessageBus, logger *slog.Logger) *SlackChannel {
	return &SlackChannel{
		cfg:    cfg,
		bus:    b,
		logger: logger.With("channel", "slack"),
	}
}

func (c *SlackChannel) Name() string { return "slack" }

// Start opens the Socket Mode connection and the event pump.
func (c *SlackChannel) Start(ctx context.Context) error {
	if c.cfg.BotToken == "" || c.cfg.AppToken == "" {
		return fmt.Errorf("slack requires bot_token and app_token")
	}
	c.api = slack.New(c.cfg.BotToken, slack.OptionAppLevelToken(c.cfg.AppToken))
	c.socket = socketmode.New(c.api)

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.pumpEvents(ctx)
	}()
	go func() {
		defer c.wg.Done()
		if err := c.socket.RunContext(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("socket mode stopped", "error", err)
		}
	}()
	return nil
}

// Stop cancels the socket connection and waits for the pump.
func (c *SlackChannel) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *SlackChannel) pumpEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-c.socket.Events:
			if !ok {
				return
			}
			switch event.Type {
			case socketmode.EventTypeConnected:
				c.logger.Info("connected to slack")
			case socketmode.EventTypeConnectionError:
				c.logger.Warn("slack connection error", "data", event.Data)
			case socketmode.EventTypeEventsAPI:
				c.handleEventsAPI(ctx, event)
			case socketmode.EventTypeSlashCommand, socketmode.EventTypeInteractive:
				if event.Request != nil {
					c.socket.Ack(*event.Request)
				}
			}
		}
	}
}

func (c *SlackChannel) handleEventsAPI(ctx context.Context, event socketmode.Event) {
	apiEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if event.Request != nil {
		c.socket.Ack(*event.Request)
	}
	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}

	switch inner := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// Ignore our own and other bots' messages and edits.
		if inner.BotID != "" || inner.SubType != "" || inner.Text == "" {
			return
		}
		c.publish(ctx, inner.Channel, inner.User, inner.Text)
	case *slackevents.AppMentionEvent:
		c.publish(ctx, inner.Channel, inner.User, inner.Text)
	}
}

func (c *SlackChannel) publish(ctx context.Context, chatID, senderID, text string) {
	err := c.bus.PublishInbound(ctx, bus.InboundMessage{
		Channel:  c.Name(),
		SenderID: senderID,
		ChatID:   chatID,
		Content:  text,
	})
	if err != nil {
		c.logger.Error("inbound publish failed", "chat_id", chatID, "error", err)
	}
}

// Send posts the reply to the channel.
func (c *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if c.api == nil {
		return fmt.Errorf("slack channel not started")
	}
	_, _, err := c.api.PostMessageContext(ctx, msg.ChatID,
		slack.MsgOptionText(msg.Content, false))
	if err != nil {
		return fmt.Errorf("slack send failed: %w", err)
	}
	return nil
}
