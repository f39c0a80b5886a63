// Package automation implements the mesh-reactive and scheduled
// behaviors layered on top of the radio session and node/chat stores:
// auto-ack, auto-welcome, auto-announce, auto-responder, and scheduled
// traceroute probing. Each hook is a bus-subscriber goroutine (matching
// domain.ChatStore.Start's subscribe-then-range pattern) or a
// time.Ticker-driven scheduler (matching app.UpdateChecker's polling
// idiom); the engine only wires them up and starts/stops them together.
package automation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skobkin/meshgo/internal/bus"
	"github.com/skobkin/meshgo/internal/domain"
)

// Engine owns every automation hook and starts them together against a
// shared context.
type Engine struct {
	autoAck             *AutoAck
	autoWelcome         *AutoWelcome
	autoAnnounce        *AutoAnnounce
	autoResponder       *AutoResponder
	scheduledTraceroute *ScheduledTraceroute
}

// NewEngine builds every hook from cfg. textOut provides text send and
// tracerouteOut provides traceroute dispatch (radio.Service satisfies
// both); markWelcomed
// should perform the atomic first-welcome compare-and-set (in-memory
// and persisted).
func NewEngine(
	cfg Config,
	messageBus bus.MessageBus,
	nodeStore *domain.NodeStore,
	textOut textSender,
	tracerouteOut tracerouteSender,
	markWelcomed func(nodeID string) bool,
	logger *slog.Logger,
) (*Engine, error) {
	if logger == nil {
		logger = slog.Default().With("component", "automation")
	}

	autoAck, err := NewAutoAck(cfg.AutoAck, messageBus, textOut, nodeStore, logger.With("hook", "auto_ack"))
	if err != nil {
		return nil, fmt.Errorf("build auto-ack hook: %w", err)
	}
	autoResponder, err := NewAutoResponder(cfg.AutoResponder, messageBus, textOut, logger.With("hook", "auto_responder"))
	if err != nil {
		return nil, fmt.Errorf("build auto-responder hook: %w", err)
	}
	scheduledTraceroute, err := NewScheduledTraceroute(cfg.ScheduledTraceroute, nodeStore, tracerouteOut, logger.With("hook", "scheduled_traceroute"))
	if err != nil {
		return nil, fmt.Errorf("build scheduled traceroute hook: %w", err)
	}

	autoWelcome := NewAutoWelcome(cfg.AutoWelcome, messageBus, textOut, markWelcomed, logger.With("hook", "auto_welcome"))
	autoAnnounce := NewAutoAnnounce(cfg.AutoAnnounce, textOut, logger.With("hook", "auto_announce"))

	return &Engine{
		autoAck:             autoAck,
		autoWelcome:         autoWelcome,
		autoAnnounce:        autoAnnounce,
		autoResponder:       autoResponder,
		scheduledTraceroute: scheduledTraceroute,
	}, nil
}

// Start launches every enabled hook; each hook is a no-op if its own
// config disables it.
func (e *Engine) Start(ctx context.Context) {
	if e == nil {
		return
	}
	e.autoAck.Start(ctx)
	e.autoWelcome.Start(ctx)
	e.autoAnnounce.Start(ctx)
	e.autoResponder.Start(ctx)
	e.scheduledTraceroute.Start(ctx)
}
