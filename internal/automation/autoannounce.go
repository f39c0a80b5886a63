package automation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AutoAnnounce broadcasts a configured message on an interval, and
// optionally once at startup, mirroring app.UpdateChecker's
// ticker-driven polling shape.
type AutoAnnounce struct {
	cfg    AutoAnnounceConfig
	sender textSender
	logger *slog.Logger

	startOnce sync.Once
}

func NewAutoAnnounce(cfg AutoAnnounceConfig, sender textSender, logger *slog.Logger) *AutoAnnounce {
	if logger == nil {
		logger = slog.Default().With("component", "automation.autoannounce")
	}

	return &AutoAnnounce{cfg: cfg, sender: sender, logger: logger}
}

func (h *AutoAnnounce) Start(ctx context.Context) {
	if h == nil || !h.cfg.Enabled || h.sender == nil {
		return
	}

	h.startOnce.Do(func() {
		go h.run(ctx)
	})
}

func (h *AutoAnnounce) run(ctx context.Context) {
	if h.cfg.OnStartup {
		h.announce()
	}
	if h.cfg.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.announce()
		}
	}
}

func (h *AutoAnnounce) announce() {
	res := <-h.sender.SendText(h.cfg.ChatKey, h.cfg.Text)
	if res.Err != nil {
		h.logger.Warn("auto-announce send failed", "chat_key", h.cfg.ChatKey, "error", res.Err)

		return
	}
	h.logger.Info("sent auto-announce message", "chat_key", h.cfg.ChatKey)
}
