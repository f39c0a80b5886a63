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

func TestAutoResponder_FirstMatchingRuleWins(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	messageBus := bus.New(logger)
	defer messageBus.Close()

	sender := &fakeTextSender{}
	hook, err := NewAutoResponder(AutoResponderConfig{
		Enabled: true,
		Rules: []AutoResponderRule{
			{Pattern: `(?i)weather`, Reply: "it's sunny"},
			{Pattern: `(?i).*`, Reply: "catch-all"},
		},
	}, messageBus, sender, logger)
	if err != nil {
		t.Fatalf("build hook: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hook.Start(ctx)

	messageBus.Publish(connectors.TopicTextMessage, domain.ChatMessage{
		ChatKey:   "ch:0",
		Direction: domain.MessageDirectionIn,
		Body:      "what's the weather like",
	})

	deadline := time.After(time.Second)
	for sender.count() == 0 {
		select {
		case <-deadline:
			t.Fatalf("expected a reply")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if got := sender.last(); got.text != "it's sunny" {
		t.Fatalf("expected the first matching rule to win, got %+v", got)
	}
}

func TestAutoResponder_InvalidPatternFailsConstruction(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := NewAutoResponder(AutoResponderConfig{
		Enabled: true,
		Rules:   []AutoResponderRule{{Pattern: "(unterminated", Reply: "x"}},
	}, nil, nil, logger)
	if err == nil {
		t.Fatalf("expected an error for invalid regex")
	}
}
