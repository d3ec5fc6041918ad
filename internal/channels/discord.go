package channels

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/lukelzlz/nanobot/internal/bus"
	"github.com/lukelzlz/nanobot/internal/config"
)

// Discord rejects messages over 2000 chars.
const discordChunkLimit = 2000

// DiscordChannel receives messages over the gateway websocket.
type DiscordChannel struct {
	cfg    config.DiscordConfig
	bus    *bus.MessageBus
	logger *slog.Logger

	session *discordgo.Session
}

// NewDiscordChannel creates the adapter; the gateway opens on Start.
func NewDiscordChannel(cfg config.DiscordConfig, b *bus.MessageBus, logger *slog.Logger) *DiscordChannel {
	return &DiscordChannel{
		cfg:    cfg,
		bus:    b,
		logger: logger.With("channel", "discord"),
	}
}

func (c *DiscordChannel) Name() string { return "discord" }

// Start opens the gateway session with message-content intent.
func (c *DiscordChannel) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + c.cfg.BotToken)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	session.AddHandler(c.handleMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	c.session = session
	return nil
}

// Stop closes the gateway session.
func (c *DiscordChannel) Stop(ctx context.Context) error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

func (c *DiscordChannel) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Content == "" {
		return
	}
	if !allowedChat(c.cfg.AllowedChats, m.ChannelID, m.Author.ID) {
		c.logger.Debug("message from unlisted channel dropped", "chat_id", m.ChannelID)
		return
	}

	err := c.bus.PublishInbound(context.Background(), bus.InboundMessage{
		Channel:  c.Name(),
		SenderID: m.Author.ID,
		ChatID:   m.ChannelID,
		Content:  m.Content,
	})
	if err != nil {
		c.logger.Error("inbound publish failed", "chat_id", m.ChannelID, "error", err)
	}
}

// Send delivers the reply in 2000-char chunks.
func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if c.session == nil {
		return fmt.Errorf("discord channel not started")
	}
	for _, chunk := range splitMessage(msg.Content, discordChunkLimit) {
		if _, err := c.session.ChannelMessageSend(msg.ChatID, chunk); err != nil {
			return fmt.Errorf("discord send failed: %w", err)
		}
	}
	return nil
}
