package automation

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/skobkin/meshgo/internal/bus"
	"github.com/skobkin/meshgo/internal/connectors"
	"github.com/skobkin/meshgo/internal/domain"
)

func TestAutoAck_RepliesOnMatchingIncomingMessage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	messageBus := bus.New(logger)
	defer messageBus.Close()

	sender := &fakeTextSender{}
	hook, err := NewAutoAck(AutoAckConfig{
		Enabled:      true,
		MatchPattern: `(?i)^ping$`,
		ReplyText:    "pong",
	}, messageBus, sender, domain.NewNodeStore(), logger)
	if err != nil {
		t.Fatalf("build hook: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hook.Start(ctx)

	messageBus.Publish(connectors.TopicTextMessage, domain.ChatMessage{
		ChatKey:   "ch:0",
		Direction: domain.MessageDirectionIn,
		Body:      "ping",
	})

	deadline := time.After(time.Second)
	for sender.count() == 0 {
		select {
		case <-deadline:
			t.Fatalf("expected an auto-ack reply")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if got := sender.last(); got.chatKey != "ch:0" || got.text != "pong" {
		t.Fatalf("unexpected reply: %+v", got)
	}
}

func TestAutoAck_IgnoresNonMatchingAndOutgoingMessages(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	messageBus := bus.New(logger)
	defer messageBus.Close()

	sender := &fakeTextSender{}
	hook, err := NewAutoAck(AutoAckConfig{
		Enabled:      true,
		MatchPattern: `^ping$`,
		ReplyText:    "pong",
	}, messageBus, sender, domain.NewNodeStore(), logger)
	if err != nil {
		t.Fatalf("build hook: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hook.Start(ctx)

	messageBus.Publish(connectors.TopicTextMessage, domain.ChatMessage{
		ChatKey:   "ch:0",
		Direction: domain.MessageDirectionIn,
		Body:      "hello",
	})
	messageBus.Publish(connectors.TopicTextMessage, domain.ChatMessage{
		ChatKey:   "ch:0",
		Direction: domain.MessageDirectionOut,
		Body:      "ping",
	})

	time.Sleep(50 * time.Millisecond)
	if got := sender.count(); got != 0 {
		t.Fatalf("expected no replies, got %d", got)
	}
}

func TestAutoAck_DisabledHookDoesNothing(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	messageBus := bus.New(logger)
	defer messageBus.Close()

	sender := &fakeTextSender{}
	hook, err := NewAutoAck(AutoAckConfig{Enabled: false}, messageBus, sender, nil, logger)
	if err != nil {
		t.Fatalf("build hook: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hook.Start(ctx)

	messageBus.Publish(connectors.TopicTextMessage, domain.ChatMessage{
		ChatKey:   "ch:0",
		Direction: domain.MessageDirectionIn,
		Body:      "ping",
	})
	time.Sleep(50 * time.Millisecond)
	if got := sender.count(); got != 0 {
		t.Fatalf("expected disabled hook to send nothing, got %d", got)
	}
}
