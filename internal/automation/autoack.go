package automation

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/skobkin/meshgo/internal/bus"
	"github.com/skobkin/meshgo/internal/connectors"
	"github.com/skobkin/meshgo/internal/domain"
)

// AutoAck replies on the same conversation when an incoming message
// matches a configured pattern, after letting the mesh settle for a
// short delay.
type AutoAck struct {
	cfg       AutoAckConfig
	bus       bus.MessageBus
	sender    textSender
	nodeStore *domain.NodeStore
	logger    *slog.Logger
	pattern   *regexp.Regexp
}

func NewAutoAck(
	cfg AutoAckConfig,
	messageBus bus.MessageBus,
	sender textSender,
	nodeStore *domain.NodeStore,
	logger *slog.Logger,
) (*AutoAck, error) {
	if logger == nil {
		logger = slog.Default().With("component", "automation.autoack")
	}
	if !cfg.Enabled {
		return &AutoAck{cfg: cfg, logger: logger}, nil
	}

	pattern, err := regexp.Compile(cfg.MatchPattern)
	if err != nil {
		return nil, fmt.Errorf("compile auto-ack pattern %q: %w", cfg.MatchPattern, err)
	}

	return &AutoAck{
		cfg:       cfg,
		bus:       messageBus,
		sender:    sender,
		nodeStore: nodeStore,
		logger:    logger,
		pattern:   pattern,
	}, nil
}

func (h *AutoAck) Start(ctx context.Context) {
	if h == nil || !h.cfg.Enabled || h.bus == nil {
		return
	}

	sub := h.bus.Subscribe(connectors.TopicTextMessage)
	go func() {
		defer h.bus.Unsubscribe(sub, connectors.TopicTextMessage)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				msg, ok := raw.(domain.ChatMessage)
				if !ok {
					continue
				}
				h.handle(ctx, msg)
			}
		}
	}()
}

func (h *AutoAck) handle(ctx context.Context, msg domain.ChatMessage) {
	if msg.Direction != domain.MessageDirectionIn {
		return
	}
	if !h.pattern.MatchString(msg.Body) {
		return
	}
	if h.cfg.SkipIncompleteNode && !h.senderNodeIsComplete(msg.ChatKey) {
		return
	}

	chatKey := msg.ChatKey
	go h.reply(ctx, chatKey)
}

func (h *AutoAck) senderNodeIsComplete(chatKey string) bool {
	nodeID := strings.TrimSpace(domain.NodeIDFromDMChatKey(chatKey))
	if nodeID == "" || h.nodeStore == nil {
		return true
	}
	node, ok := h.nodeStore.Get(nodeID)
	if !ok {
		return false
	}

	return strings.TrimSpace(node.LongName) != ""
}

func (h *AutoAck) reply(ctx context.Context, chatKey string) {
	if h.cfg.Delay > 0 {
		timer := time.NewTimer(h.cfg.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}

	res := <-h.sender.SendText(chatKey, h.cfg.ReplyText)
	if res.Err != nil {
		h.logger.Warn("auto-ack reply failed", "chat_key", chatKey, "error", res.Err)

		return
	}
	h.logger.Info("sent auto-ack reply", "chat_key", chatKey)
}
