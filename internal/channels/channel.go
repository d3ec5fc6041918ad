// Package channels bridges chat platforms to the message bus. Each adapter
// forwards platform messages inbound and delivers agent replies outbound.
package channels

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/lukelzlz/nanobot/internal/bus"
	"github.com/lukelzlz/nanobot/internal/config"
)

// Channel is one chat platform adapter.
type Channel interface {
	// Name returns the stable channel identifier ("telegram", "discord", ...).
	Name() string

	// Start connects to the platform and begins forwarding inbound messages.
	// It must not block beyond connection setup.
	Start(ctx context.Context) error

	// Stop disconnects and waits for in-flight work.
	Stop(ctx context.Context) error

	// Send delivers one outbound message to the platform.
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// Manager owns the enabled channel adapters and wires them to the bus.
type Manager struct {
	bus    *bus.MessageBus
	logger *slog.Logger

	mu       sync.Mutex
	channels map[string]Channel
}

// NewManager builds adapters for every enabled channel in the configuration.
func NewManager(cfg *config.Config, b *bus.MessageBus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		bus:      b,
		logger:   logger.With("component", "channels"),
		channels: make(map[string]Channel),
	}

	if cfg.Channels.Telegram.Enabled {
		m.register(NewTelegramChannel(cfg.Channels.Telegram, b, logger))
	}
	if cfg.Channels.Discord.Enabled {
		m.register(NewDiscordChannel(cfg.Channels.Discord, b, logger))
	}
	if cfg.Channels.Slack.Enabled {
		m.register(NewSlackChannel(cfg.Channels.Slack, b, logger))
	}
	if cfg.Channels.WhatsApp.Enabled {
		m.register(NewWhatsAppChannel(cfg.Channels.WhatsApp, b, logger))
	}
	return m
}

func (m *Manager) register(ch Channel) {
	m.mu.Lock()
	m.channels[ch.Name()] = ch
	m.mu.Unlock()
}

// Names lists the registered channel names sorted.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll starts every adapter and subscribes each to its outbound stream.
// A failing adapter is logged and skipped; the rest keep running.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, ch := range m.channels {
		if err := ch.Start(ctx); err != nil {
			m.logger.Error("channel start failed", "channel", name, "error", err)
			delete(m.channels, name)
			continue
		}
		ch := ch
		m.bus.Subscribe(name, func(ctx context.Context, msg bus.OutboundMessage) {
			if err := ch.Send(ctx, msg); err != nil {
				m.logger.Error("send failed", "channel", ch.Name(), "chat_id", msg.ChatID, "error", err)
			}
		})
		m.logger.Info("channel started", "channel", name)
	}
}

// StopAll stops every adapter.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			m.logger.Warn("channel stop failed", "channel", name, "error", err)
		}
	}
}

// splitMessage chunks content at the platform's length limit, preferring
// newline then space boundaries.
func splitMessage(content string, limit int) []string {
	if limit <= 0 || len(content) <= limit {
		return []string{content}
	}
	var chunks []string
	for len(content) > limit {
		cut := limit
		if idx := strings.LastIndex(content[:limit], "\n"); idx > limit/2 {
			cut = idx
		} else if idx := strings.LastIndex(content[:limit], " "); idx > limit/2 {
			cut = idx
		}
		chunks = append(chunks, strings.TrimRight(content[:cut], "\n "))
		content = strings.TrimLeft(content[cut:], "\n ")
	}
	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}

// allowedChat reports whether the chat or sender passes the allowlist. An
// empty allowlist admits everyone.
func allowedChat(allowlist []string, chatID, senderID string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, id := range allowlist {
		if id == chatID || id == senderID {
			return true
		}
	}
	return false
}
