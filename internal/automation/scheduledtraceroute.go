package automation

import (
	"context"
	"log/slog"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/skobkin/meshgo/internal/domain"
)

// ScheduledTraceroute periodically picks a destination from a filtered
// node pool and issues a traceroute against it.
type ScheduledTraceroute struct {
	cfg       ScheduledTracerouteConfig
	nodeStore *domain.NodeStore
	sender    tracerouteSender
	logger    *slog.Logger
	nameRegex *regexp.Regexp

	startOnce sync.Once
	rng       *rand.Rand
	rngMu     sync.Mutex
}

func NewScheduledTraceroute(
	cfg ScheduledTracerouteConfig,
	nodeStore *domain.NodeStore,
	sender tracerouteSender,
	logger *slog.Logger,
) (*ScheduledTraceroute, error) {
	if logger == nil {
		logger = slog.Default().With("component", "automation.scheduled_traceroute")
	}

	h := &ScheduledTraceroute{
		cfg:       cfg,
		nodeStore: nodeStore,
		sender:    sender,
		logger:    logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if cfg.Enabled && cfg.Filter.NameRegexEnabled {
		pattern, err := regexp.Compile(cfg.Filter.NameRegex)
		if err != nil {
			return nil, err
		}
		h.nameRegex = pattern
	}

	return h, nil
}

func (h *ScheduledTraceroute) Start(ctx context.Context) {
	if h == nil || !h.cfg.Enabled || h.cfg.Interval <= 0 || h.sender == nil {
		return
	}

	h.startOnce.Do(func() {
		go h.run(ctx)
	})
}

func (h *ScheduledTraceroute) run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.fireOne()
		}
	}
}

func (h *ScheduledTraceroute) fireOne() {
	target, channel, ok := h.pickTarget()
	if !ok {
		h.logger.Debug("scheduled traceroute skipped, no eligible node")

		return
	}

	nodeNum, err := parseNodeNum(target.NodeID)
	if err != nil {
		h.logger.Warn("scheduled traceroute could not parse node id", "node_id", target.NodeID, "error", err)

		return
	}
	if _, err := h.sender.SendTraceroute(nodeNum, channel); err != nil {
		h.logger.Warn("scheduled traceroute send failed", "node_id", target.NodeID, "error", err)

		return
	}
	h.logger.Info("issued scheduled traceroute", "node_id", target.NodeID)
}

func (h *ScheduledTraceroute) pickTarget() (domain.Node, uint32, bool) {
	if h.nodeStore == nil {
		return domain.Node{}, 0, false
	}

	var pool []domain.Node
	for _, node := range h.nodeStore.SnapshotSorted() {
		if h.eligible(node) {
			pool = append(pool, node)
		}
	}
	if len(pool) == 0 {
		return domain.Node{}, 0, false
	}

	h.rngMu.Lock()
	idx := h.rng.Intn(len(pool))
	h.rngMu.Unlock()

	node := pool[idx]
	channel := uint32(0)
	if node.Channel != nil {
		channel = *node.Channel
	}

	return node, channel, true
}

func (h *ScheduledTraceroute) eligible(node domain.Node) bool {
	f := h.cfg.Filter
	if f.ChannelEnabled {
		if node.Channel == nil || *node.Channel != f.Channel {
			return false
		}
	}
	if f.RoleEnabled && !strings.EqualFold(node.Role, f.Role) {
		return false
	}
	if f.HwModelEnabled && !strings.EqualFold(node.BoardModel, f.HwModel) {
		return false
	}
	if f.NameRegexEnabled {
		if h.nameRegex == nil || !h.nameRegex.MatchString(node.LongName) {
			return false
		}
	}
	if f.NodeIDsEnabled {
		matched := false
		for _, id := range f.NodeIDs {
			if strings.EqualFold(id, node.NodeID) {
				matched = true

				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

func parseNodeNum(nodeID string) (uint32, error) {
	nodeID = strings.TrimSpace(nodeID)
	nodeID = strings.TrimPrefix(nodeID, "!")
	v, err := strconv.ParseUint(nodeID, 16, 32)
	if err != nil {
		return 0, err
	}

	return uint32(v), nil
}
