package domain

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skobkin/meshgo/internal/bus"
	"github.com/skobkin/meshgo/internal/connectors"
)

// NodeStore keeps the latest node snapshots in memory for the UI.
type NodeStore struct {
	mu      sync.RWMutex
	nodes   map[string]Node
	changes chan struct{}
}

func NewNodeStore() *NodeStore {
	return &NodeStore{
		nodes:   make(map[string]Node),
		changes: make(chan struct{}, 1),
	}
}

func (s *NodeStore) Load(nodes []Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, node := range nodes {
		s.nodes[node.NodeID] = node
	}
	s.notify()
}

func (s *NodeStore) Start(ctx context.Context, b bus.MessageBus) {
	sub := b.Subscribe(connectors.TopicNodeInfo)
	go func() {
		defer b.Unsubscribe(sub, connectors.TopicNodeInfo)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub:
				if !ok {
					return
				}
				update, ok := msg.(NodeUpdate)
				if !ok {
					continue
				}
				s.Upsert(update.Node)
			}
		}
	}()
}

func (s *NodeStore) Upsert(node Node) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.nodes[node.NodeID]
	if ok {
		// Merge sparse updates without wiping cached metadata.
		if node.LongName == "" {
			node.LongName = existing.LongName
		}
		if node.ShortName == "" {
			node.ShortName = existing.ShortName
		}
		if node.Latitude == nil {
			node.Latitude = existing.Latitude
		}
		if node.Longitude == nil {
			node.Longitude = existing.Longitude
		}
		if node.Altitude == nil {
			node.Altitude = existing.Altitude
		}
		if node.BatteryLevel == nil {
			node.BatteryLevel = existing.BatteryLevel
		}
		if node.Voltage == nil {
			node.Voltage = existing.Voltage
		}
		if node.Temperature == nil {
			node.Temperature = existing.Temperature
		}
		if node.Humidity == nil {
			node.Humidity = existing.Humidity
		}
		if node.Pressure == nil {
			node.Pressure = existing.Pressure
		}
		if node.AirQualityIndex == nil {
			node.AirQualityIndex = existing.AirQualityIndex
		}
		if node.PowerVoltage == nil {
			node.PowerVoltage = existing.PowerVoltage
		}
		if node.PowerCurrent == nil {
			node.PowerCurrent = existing.PowerCurrent
		}
		if node.BoardModel == "" {
			node.BoardModel = existing.BoardModel
		}
		if node.Role == "" {
			node.Role = existing.Role
		}
		if node.IsUnmessageable == nil {
			node.IsUnmessageable = existing.IsUnmessageable
		}
		if node.RSSI == nil {
			node.RSSI = existing.RSSI
		}
		if node.SNR == nil {
			node.SNR = existing.SNR
		}
		if node.LastHeardAt.IsZero() || existing.LastHeardAt.After(node.LastHeardAt) {
			node.LastHeardAt = existing.LastHeardAt
		}
		if existing.UpdatedAt.After(node.UpdatedAt) {
			node.UpdatedAt = existing.UpdatedAt
		}
		// createdAt, favorite/ignored flags, and welcomedAt are never
		// overwritten by a sparse radio update; only the dedicated
		// setters below mutate them.
		node.CreatedAt = existing.CreatedAt
		node.Favorite = existing.Favorite
		node.Ignored = existing.Ignored
		node.WelcomedAt = existing.WelcomedAt
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now()
	}
	if node.UpdatedAt.IsZero() {
		node.UpdatedAt = time.Now()
	}
	s.nodes[node.NodeID] = node
	s.notify()
}

// SetFavorite updates the local favorite flag for nodeID, returning false
// if the node is not known yet.
func (s *NodeStore) SetFavorite(nodeID string, favorite bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return false
	}
	node.Favorite = favorite
	node.UpdatedAt = time.Now()
	s.nodes[nodeID] = node
	s.notify()

	return true
}

// SetIgnored updates the local ignored flag for nodeID, returning false
// if the node is not known yet.
func (s *NodeStore) SetIgnored(nodeID string, ignored bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return false
	}
	node.Ignored = ignored
	node.UpdatedAt = time.Now()
	s.nodes[nodeID] = node
	s.notify()

	return true
}

// MarkWelcomedIfNotAlready atomically sets WelcomedAt the first time it
// is called for nodeID, returning true only on the call that actually set
// it, so an auto-welcome hook never fires twice for the same node.
func (s *NodeStore) MarkWelcomedIfNotAlready(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeID]
	if !ok || node.WelcomedAt != nil {
		return false
	}
	now := time.Now()
	node.WelcomedAt = &now
	s.nodes[nodeID] = node
	s.notify()

	return true
}

// Delete removes a node from the in-memory store, mirroring a cascading
// repository delete.
func (s *NodeStore) Delete(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, nodeID)
	s.notify()
}

func (s *NodeStore) SnapshotSorted() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastHeardAt.After(out[j].LastHeardAt)
	})

	return out
}

// ActiveNodes returns nodes last heard within maxAge, newest first.
func (s *NodeStore) ActiveNodes(maxAge time.Duration) []Node {
	cutoff := time.Now().Add(-maxAge)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		if node.LastHeardAt.After(cutoff) {
			out = append(out, node)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastHeardAt.After(out[j].LastHeardAt)
	})

	return out
}

func (s *NodeStore) Get(nodeID string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[nodeID]

	return node, ok
}

func (s *NodeStore) Changes() <-chan struct{} {
	return s.changes
}

func (s *NodeStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]Node)
	s.notify()
}

func (s *NodeStore) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
