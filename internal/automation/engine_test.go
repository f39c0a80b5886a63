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

func TestEngine_AllHooksDisabledStartsCleanly(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	messageBus := bus.New(logger)
	defer messageBus.Close()

	nodeStore := domain.NewNodeStore()
	sender := &fakeTextSender{}
	tracerouteSender := &fakeTracerouteSender{}

	engine, err := NewEngine(Config{}, messageBus, nodeStore, sender, tracerouteSender, func(string) bool { return true }, logger)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)

	messageBus.Publish(connectors.TopicTextMessage, domain.ChatMessage{ChatKey: "ch:0", Direction: domain.MessageDirectionIn, Body: "ping"})
	time.Sleep(50 * time.Millisecond)
	if got := sender.count(); got != 0 {
		t.Fatalf("expected no sends with all hooks disabled, got %d", got)
	}
}

func TestEngine_AutoAckAndAutoWelcomeBothFire(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	messageBus := bus.New(logger)
	defer messageBus.Close()

	nodeStore := domain.NewNodeStore()
	sender := &fakeTextSender{}
	tracerouteSender := &fakeTracerouteSender{}

	cfg := Config{
		AutoAck: AutoAckConfig{Enabled: true, MatchPattern: `^ping$`, ReplyText: "pong"},
		AutoWelcome: AutoWelcomeConfig{
			Enabled:      true,
			GreetingText: "hi",
		},
	}
	engine, err := NewEngine(cfg, messageBus, nodeStore, sender, tracerouteSender, func(string) bool { return true }, logger)
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)

	messageBus.Publish(connectors.TopicTextMessage, domain.ChatMessage{ChatKey: "ch:0", Direction: domain.MessageDirectionIn, Body: "ping"})
	messageBus.Publish(connectors.TopicNodeDiscovered, domain.NodeDiscovered{NodeID: "!00000001", Node: domain.Node{NodeID: "!00000001"}})

	deadline := time.After(time.Second)
	for sender.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected both hooks to send, got %d", sender.count())
		default:
			time.Sleep(time.Millisecond)
		}
	}
}
