package automation

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestAutoAnnounce_SendsOnStartup(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sender := &fakeTextSender{}
	hook := NewAutoAnnounce(AutoAnnounceConfig{
		Enabled:   true,
		ChatKey:   "ch:0",
		Text:      "hello mesh",
		OnStartup: true,
	}, sender, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hook.Start(ctx)

	deadline := time.After(time.Second)
	for sender.count() == 0 {
		select {
		case <-deadline:
			t.Fatalf("expected a startup announcement")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if got := sender.last(); got.chatKey != "ch:0" || got.text != "hello mesh" {
		t.Fatalf("unexpected announcement: %+v", got)
	}
}

func TestAutoAnnounce_RepeatsOnInterval(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sender := &fakeTextSender{}
	hook := NewAutoAnnounce(AutoAnnounceConfig{
		Enabled:  true,
		ChatKey:  "ch:0",
		Text:     "tick",
		Interval: 20 * time.Millisecond,
	}, sender, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hook.Start(ctx)

	deadline := time.After(2 * time.Second)
	for sender.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 2 announcements, got %d", sender.count())
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestAutoAnnounce_DisabledDoesNothing(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sender := &fakeTextSender{}
	hook := NewAutoAnnounce(AutoAnnounceConfig{Enabled: false, OnStartup: true}, sender, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hook.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	if got := sender.count(); got != 0 {
		t.Fatalf("expected no announcements, got %d", got)
	}
}
