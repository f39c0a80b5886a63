package automation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/skobkin/meshgo/internal/bus"
	"github.com/skobkin/meshgo/internal/connectors"
	"github.com/skobkin/meshgo/internal/domain"
)

// AutoWelcome greets a node the first time it is seen and atomically
// marks it welcomed so it is never greeted twice, per
// domain.NodeStore.MarkWelcomedIfNotAlready's compare-and-set contract.
type AutoWelcome struct {
	cfg          AutoWelcomeConfig
	bus          bus.MessageBus
	sender       textSender
	markWelcomed func(nodeID string) bool
	logger       *slog.Logger
}

// markWelcomed should be domain.NodeStore.MarkWelcomedIfNotAlready
// (or an equivalent that also persists the timestamp); it must return
// true only for the caller that wins the race to welcome a node.
func NewAutoWelcome(
	cfg AutoWelcomeConfig,
	messageBus bus.MessageBus,
	sender textSender,
	markWelcomed func(nodeID string) bool,
	logger *slog.Logger,
) *AutoWelcome {
	if logger == nil {
		logger = slog.Default().With("component", "automation.autowelcome")
	}

	return &AutoWelcome{
		cfg:          cfg,
		bus:          messageBus,
		sender:       sender,
		markWelcomed: markWelcomed,
		logger:       logger,
	}
}

func (h *AutoWelcome) Start(ctx context.Context) {
	if h == nil || !h.cfg.Enabled || h.bus == nil {
		return
	}

	sub := h.bus.Subscribe(connectors.TopicNodeDiscovered)
	go func() {
		defer h.bus.Unsubscribe(sub, connectors.TopicNodeDiscovered)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				event, ok := raw.(domain.NodeDiscovered)
				if !ok {
					continue
				}
				h.handle(event)
			}
		}
	}()
}

func (h *AutoWelcome) handle(event domain.NodeDiscovered) {
	nodeID := strings.TrimSpace(event.NodeID)
	if nodeID == "" {
		nodeID = strings.TrimSpace(event.Node.NodeID)
	}
	if nodeID == "" {
		return
	}
	if h.cfg.WaitForName && strings.TrimSpace(event.Node.LongName) == "" {
		return
	}
	if h.markWelcomed == nil || !h.markWelcomed(nodeID) {
		return
	}

	chatKey := domain.ChatKeyForDM(nodeID)
	res := <-h.sender.SendText(chatKey, h.cfg.GreetingText)
	if res.Err != nil {
		h.logger.Warn("auto-welcome greeting failed", "node_id", nodeID, "error", res.Err)

		return
	}
	h.logger.Info("sent auto-welcome greeting", "node_id", nodeID)
}
