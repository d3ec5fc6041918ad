package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestPublishConsumeOrder(t *testing.T) {
	b := NewWithSize(nil, 8)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		msg := InboundMessage{Channel: "telegram", ChatID: "42", Content: fmt.Sprintf("m%d", i)}
		if err := b.PublishInbound(ctx, msg); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		msg, err := b.ConsumeInbound(ctx, time.Second)
		if err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
		if want := fmt.Sprintf("m%d", i); msg.Content != want {
			t.Fatalf("consume %d: got %q want %q", i, msg.Content, want)
		}
	}
}

func TestConsumeInboundTimeout(t *testing.T) {
	b := NewWithSize(nil, 1)
	_, err := b.ConsumeInbound(context.Background(), 10*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestPublishInboundBlocksWhenFull(t *testing.T) {
	b := NewWithSize(nil, 1)
	ctx := context.Background()
	if err := b.PublishInbound(ctx, InboundMessage{Content: "first"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	published := make(chan error, 1)
	go func() {
		published <- b.PublishInbound(ctx, InboundMessage{Content: "second"})
	}()

	select {
	case err := <-published:
		t.Fatalf("publish on full queue returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := b.ConsumeInbound(ctx, time.Second); err != nil {
		t.Fatalf("consume: %v", err)
	}
	select {
	case err := <-published:
		if err != nil {
			t.Fatalf("blocked publish: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("publish still blocked after space freed")
	}
}

func TestPublishInboundHonorsContext(t *testing.T) {
	b := NewWithSize(nil, 1)
	ctx := context.Background()
	if err := b.PublishInbound(ctx, InboundMessage{Content: "first"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	cancelled, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := b.PublishInbound(cancelled, InboundMessage{Content: "second"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want DeadlineExceeded", err)
	}
}

func TestPublishOutboundDropsOldest(t *testing.T) {
	b := NewWithSize(nil, 2)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		msg := OutboundMessage{Channel: "telegram", Content: fmt.Sprintf("m%d", i)}
		if err := b.PublishOutbound(ctx, msg); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if got := b.OutboundLen(); got != 2 {
		t.Fatalf("queue length = %d, want 2", got)
	}
	// m0 was dropped to make room for m2.
	first := <-b.outbound
	if first.Content != "m1" {
		t.Fatalf("head = %q, want m1", first.Content)
	}
}

func TestDispatcherRoutesByChannel(t *testing.T) {
	b := NewWithSize(nil, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	got := map[string][]string{}
	done := make(chan struct{}, 4)
	for _, name := range []string{"telegram", "discord"} {
		name := name
		b.Subscribe(name, func(ctx context.Context, msg OutboundMessage) {
			mu.Lock()
			got[name] = append(got[name], msg.Content)
			mu.Unlock()
			done <- struct{}{}
		})
	}
	b.StartDispatcher(ctx)

	b.PublishOutbound(ctx, OutboundMessage{Channel: "telegram", Content: "a"})
	b.PublishOutbound(ctx, OutboundMessage{Channel: "discord", Content: "b"})
	b.PublishOutbound(ctx, OutboundMessage{Channel: "telegram", Content: "c"})

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("dispatch timed out")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got["telegram"]) != 2 || got["telegram"][0] != "a" || got["telegram"][1] != "c" {
		t.Fatalf("telegram got %v", got["telegram"])
	}
	if len(got["discord"]) != 1 || got["discord"][0] != "b" {
		t.Fatalf("discord got %v", got["discord"])
	}
}

func TestCloseRejectsPublishes(t *testing.T) {
	b := NewWithSize(nil, 4)
	ctx := context.Background()
	b.StartDispatcher(ctx)
	b.Close()

	if err := b.PublishInbound(ctx, InboundMessage{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("inbound after close: %v", err)
	}
	if err := b.PublishOutbound(ctx, OutboundMessage{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("outbound after close: %v", err)
	}
	b.Close() // idempotent
}

func TestSessionKeyOrDefault(t *testing.T) {
	msg := InboundMessage{Channel: "telegram", ChatID: "42"}
	if got := msg.SessionKeyOrDefault(); got != "telegram:42" {
		t.Fatalf("default key = %q", got)
	}
	msg.SessionKey = "cron:abc"
	if got := msg.SessionKeyOrDefault(); got != "cron:abc" {
		t.Fatalf("override key = %q", got)
	}
}
