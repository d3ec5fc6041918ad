package channels

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/skip2/go-qrcode"

	_ "github.com/mattn/go-sqlite3" // sqlite driver for the whatsmeow device store

	"github.com/lukelzlz/nanobot/internal/bus"
	"github.com/lukelzlz/nanobot/internal/config"
)

// WhatsAppChannel connects through whatsmeow with a sqlite-backed device
// store. First login prints a pairing QR code to the terminal.
type WhatsAppChannel struct {
	cfg    config.WhatsAppConfig
	bus    *bus.MessageBus
	logger *slog.Logger

	store  *sqlstore.Container
	client *whatsmeow.Client
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWhatsAppChannel creates the adapter; the store opens on Start.
func NewWhatsAppChannel(cfg config.WhatsAppConfig, b *bus.MessageBus, logger *slog.Logger) *WhatsAppChannel {
	return &WhatsAppChannel{
		cfg:    cfg,
		bus:    b,
		logger: logger.With("channel", "whatsapp"),
	}
}

func (c *WhatsAppChannel) Name() string { return "whatsapp" }

// Start opens the device store and connects, pairing via QR when the device
// has no stored session.
func (c *WhatsAppChannel) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(c.cfg.SessionPath), 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", c.cfg.SessionPath), waLog.Noop)
	if err != nil {
		return fmt.Errorf("failed to open device store: %w", err)
	}
	c.store = container

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get device: %w", err)
	}

	c.client = whatsmeow.NewClient(device, waLog.Noop)
	c.client.AddEventHandler(c.handleEvent)

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	if c.client.Store.ID == nil {
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("failed to get QR channel: %w", err)
		}
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.pumpQR(ctx, qrChan)
		}()
		return nil
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (c *WhatsAppChannel) pumpQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-qrChan:
			if !ok {
				return
			}
			switch evt.Event {
			case "code":
				c.printQR(evt.Code)
			case "success":
				c.logger.Info("whatsapp pairing complete")
			default:
				c.logger.Warn("whatsapp pairing event", "event", evt.Event)
			}
		}
	}
}

func (c *WhatsAppChannel) printQR(code string) {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		c.logger.Error("failed to render QR code", "error", err)
		fmt.Fprintf(os.Stdout, "WhatsApp pairing code: %s\n", code)
		return
	}
	fmt.Fprintln(os.Stdout, "Scan this QR code with WhatsApp to pair:")
	fmt.Fprint(os.Stdout, qr.ToSmallString(false))
}

// Stop disconnects and closes the device store.
func (c *WhatsAppChannel) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if c.client != nil {
		c.client.Disconnect()
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Warn("failed to close device store", "error", err)
		}
	}
	return nil
}

func (c *WhatsAppChannel) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		c.logger.Info("connected to whatsapp")
	case *events.Disconnected:
		c.logger.Warn("disconnected from whatsapp")
	case *events.LoggedOut:
		c.logger.Warn("logged out from whatsapp", "reason", v.Reason)
	case *events.Message:
		c.handleMessage(v)
	}
}

func (c *WhatsAppChannel) handleMessage(evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.Chat.Server == "broadcast" {
		return
	}

	var content string
	switch {
	case evt.Message.GetConversation() != "":
		content = evt.Message.GetConversation()
	case evt.Message.GetExtendedTextMessage() != nil:
		content = evt.Message.GetExtendedTextMessage().GetText()
	case evt.Message.GetImageMessage() != nil:
		content = evt.Message.GetImageMessage().GetCaption()
	}
	if content == "" {
		return
	}

	err := c.bus.PublishInbound(context.Background(), bus.InboundMessage{
		Channel:  c.Name(),
		SenderID: evt.Info.Sender.User,
		ChatID:   evt.Info.Chat.String(),
		Content:  content,
	})
	if err != nil {
		c.logger.Error("inbound publish failed", "chat_id", evt.Info.Chat.String(), "error", err)
	}
}

// Send delivers the reply as a plain text message.
func (c *WhatsAppChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if c.client == nil {
		return fmt.Errorf("whatsapp channel not started")
	}
	jid, err := types.ParseJID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("invalid whatsapp JID %q: %w", msg.ChatID, err)
	}
	_, err = c.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(msg.Content),
	})
	if err != nil {
		return fmt.Errorf("whatsapp send failed: %w", err)
	}
	return nil
}
