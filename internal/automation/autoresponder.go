package automation

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/skobkin/meshgo/internal/bus"
	"github.com/skobkin/meshgo/internal/connectors"
	"github.com/skobkin/meshgo/internal/domain"
)

type compiledResponderRule struct {
	pattern *regexp.Regexp
	reply   string
}

// AutoResponder matches incoming message bodies against a triggered-
// message table; the first matching rule wins.
type AutoResponder struct {
	cfg    AutoResponderConfig
	bus    bus.MessageBus
	sender textSender
	logger *slog.Logger
	rules  []compiledResponderRule
}

func NewAutoResponder(
	cfg AutoResponderConfig,
	messageBus bus.MessageBus,
	sender textSender,
	logger *slog.Logger,
) (*AutoResponder, error) {
	if logger == nil {
		logger = slog.Default().With("component", "automation.autoresponder")
	}
	if !cfg.Enabled {
		return &AutoResponder{cfg: cfg, logger: logger}, nil
	}

	rules := make([]compiledResponderRule, 0, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile auto-responder rule %q: %w", rule.Pattern, err)
		}
		rules = append(rules, compiledResponderRule{pattern: pattern, reply: rule.Reply})
	}

	return &AutoResponder{
		cfg:    cfg,
		bus:    messageBus,
		sender: sender,
		logger: logger,
		rules:  rules,
	}, nil
}

func (h *AutoResponder) Start(ctx context.Context) {
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
				h.handle(msg)
			}
		}
	}()
}

func (h *AutoResponder) handle(msg domain.ChatMessage) {
	if msg.Direction != domain.MessageDirectionIn {
		return
	}
	for _, rule := range h.rules {
		if !rule.pattern.MatchString(msg.Body) {
			continue
		}
		res := <-h.sender.SendText(msg.ChatKey, rule.reply)
		if res.Err != nil {
			h.logger.Warn("auto-responder reply failed", "chat_key", msg.ChatKey, "error", res.Err)
		} else {
			h.logger.Info("sent auto-responder reply", "chat_key", msg.ChatKey)
		}

		return
	}
}
