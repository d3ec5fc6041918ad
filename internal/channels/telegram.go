package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/lukelzlz/nanobot/internal/bus"
	"github.com/lukelzlz/nanobot/internal/config"
)

// Telegram caps messages at 4096 chars; stay under it.
const telegramChunkLimit = 4000

// TelegramChannel receives updates via long polling.
type TelegramChannel struct {
	cfg    config.TelegramConfig
	bus    *bus.MessageBus
	logger *slog.Logger

	bot    *bot.Bot
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTelegramChannel creates the adapter; the connection opens on Start.
func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus, logger *slog.Logger) *TelegramChannel {
	return &TelegramChannel{
		cfg:    cfg,
		bus:    b,
		logger: logger.With("channel", "telegram"),
	}
}

func (c *TelegramChannel) Name() string { return "telegram" }

// Start creates the bot and launches long polling.
func (c *TelegramChannel) Start(ctx context.Context) error {
	b, err := bot.New(c.cfg.BotToken, bot.WithDefaultHandler(c.handleUpdate))
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}
	c.bot = b

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.bot.Start(ctx)
	}()
	return nil
}

// Stop cancels long polling and waits for the poller to exit.
func (c *TelegramChannel) Stop(ctx context.Context) error {
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

func (c *TelegramChannel) handleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	msg := update.Message
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	senderID := ""
	if msg.From != nil {
		senderID = strconv.FormatInt(msg.From.ID, 10)
	}
	if !allowedChat(c.cfg.AllowedChats, chatID, senderID) {
		c.logger.Debug("message from unlisted chat dropped", "chat_id", chatID)
		return
	}

	err := c.bus.PublishInbound(ctx, bus.InboundMessage{
		Channel:  c.Name(),
		SenderID: senderID,
		ChatID:   chatID,
		Content:  msg.Text,
	})
	if err != nil {
		c.logger.Error("inbound publish failed", "chat_id", chatID, "error", err)
	}
}

// Send delivers the reply, chunked at the platform limit.
func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if c.bot == nil {
		return fmt.Errorf("telegram channel not started")
	}
	for _, chunk := range splitMessage(msg.Content, telegramChunkLimit) {
		_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: msg.ChatID,
			Text:   chunk,
		})
		if err != nil {
			return fmt.Errorf("telegram send failed: %w", err)
		}
	}
	return nil
}
