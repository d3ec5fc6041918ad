// Package bus routes messages between channel adapters and the agent loop
// through a pair of bounded in-memory queues. Nothing is persisted: an
// unprocessed message is lost on crash.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultQueueSize is the capacity of each queue.
const DefaultQueueSize = 256

// ErrClosed is returned for operations on a closed bus.
var ErrClosed = errors.New("bus is closed")

// ErrTimeout is returned when a blocking consume times out.
var ErrTimeout = errors.New("bus read timed out")

// OutboundHandler receives outbound messages for a single channel.
type OutboundHandler func(ctx context.Context, msg OutboundMessage)

// MessageBus owns the inbound and outbound queues. Inbound publishers block
// when the queue is full (back-pressure on the channel adapter); outbound
// publishes drop the oldest message instead, so a slow transport cannot
// stall the agent.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	mu       sync.RWMutex
	handlers map[string]OutboundHandler
	closed   bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	logger  *slog.Logger
	metrics *Metrics
}

// New creates a bus with the default queue capacity.
func New(logger *slog.Logger) *MessageBus {
	return NewWithSize(logger, DefaultQueueSize)
}

// NewWithSize creates a bus with an explicit queue capacity.
func NewWithSize(logger *slog.Logger, size int) *MessageBus {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, size),
		outbound: make(chan OutboundMessage, size),
		handlers: make(map[string]OutboundHandler),
		logger:   logger.With("component", "bus"),
		metrics:  newMetrics(),
	}
}

// PublishInbound enqueues a message for the agent loop. It blocks while the
// queue is full until space frees up or ctx is done.
func (b *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	select {
	case b.inbound <- msg:
		b.metrics.inboundPublished.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishOutbound enqueues an agent reply. When the queue is full the oldest
// queued message is dropped to make room.
func (b *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	for {
		select {
		case b.outbound <- msg:
			b.metrics.outboundPublished.Inc()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		select {
		case dropped := <-b.outbound:
			b.metrics.outboundDropped.Inc()
			b.logger.Warn("outbound queue full, dropping oldest message",
				"channel", dropped.Channel, "chat_id", dropped.ChatID)
		default:
		}
	}
}

// ConsumeInbound blocks up to wait for the next inbound message.
// Returns ErrTimeout when no message arrived in time.
func (b *MessageBus) ConsumeInbound(ctx context.Context, wait time.Duration) (InboundMessage, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case msg, ok := <-b.inbound:
		if !ok {
			return InboundMessage{}, ErrClosed
		}
		b.metrics.inboundConsumed.Inc()
		return msg, nil
	case <-timer.C:
		return InboundMessage{}, ErrTimeout
	case <-ctx.Done():
		return InboundMessage{}, ctx.Err()
	}
}

// Subscribe registers the outbound handler for a channel name. The dispatcher
// must not have been started yet for the registration to be race-free.
func (b *MessageBus) Subscribe(channel string, handler OutboundHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = handler
}

// StartDispatcher launches the goroutine fanning outbound messages to the
// registered per-channel handlers. Messages for unregistered channels are
// logged and dropped.
func (b *MessageBus) StartDispatcher(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-b.outbound:
				if !ok {
					return
				}
				b.dispatch(ctx, msg)
			}
		}
	}()
}

func (b *MessageBus) dispatch(ctx context.Context, msg OutboundMessage) {
	b.mu.RLock()
	handler := b.handlers[msg.Channel]
	b.mu.RUnlock()
	if handler == nil {
		b.metrics.outboundDropped.Inc()
		b.logger.Warn("no handler for outbound channel", "channel", msg.Channel)
		return
	}
	b.metrics.outboundConsumed.Inc()
	handler(ctx, msg)
}

// Close stops the dispatcher and rejects further publishes.
func (b *MessageBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
}

// InboundLen reports the number of queued inbound messages.
func (b *MessageBus) InboundLen() int { return len(b.inbound) }

// OutboundLen reports the number of queued outbound messages.
func (b *MessageBus) OutboundLen() int { return len(b.outbound) }
