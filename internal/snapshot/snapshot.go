// Package snapshot assembles a single, non-blocking, point-in-time view
// of the mesh state for the HTTP/UI layer to poll, combining the
// NodeStore and ChatStore in-memory caches with connection and device
// config state — mirroring domain.NodeStore.SnapshotSorted and
// domain.ChatStore.ChatListSorted, which already read under RWMutex
// without touching the ingestion path.
package snapshot

import (
	"sync"
	"time"

	"github.com/skobkin/meshgo/internal/connectors"
	"github.com/skobkin/meshgo/internal/domain"
)

// Connection summarizes the device session's lifecycle for clients,
// derived from C3's connector state.
type Connection struct {
	Connected        bool
	NodeResponsive   bool
	Configuring      bool
	UserDisconnected bool
	TransportName    string
	Target           string
	Err              string
}

// DeviceConfig is the radio's own channel/config state, replayed to VNS
// clients and exposed here for the UI's settings views.
type DeviceConfig struct {
	Channels []domain.ChannelInfo
	Ready    bool
}

// Snapshot is the full Poll Snapshot returned to a single poll() call.
type Snapshot struct {
	Connection     Connection
	Nodes          []domain.Node
	Messages       map[string][]domain.ChatMessage
	Channels       []domain.ChannelInfo
	UnreadCounts   map[string]int
	TelemetryNodes map[string][]string
	Traceroutes    []domain.TracerouteRecord
	DeviceConfig   DeviceConfig
}

// ConnectionStatusFunc returns the current connector status and whether
// one has been observed yet.
type ConnectionStatusFunc func() (connectors.ConnectionStatus, bool)

// CachedInitFunc returns the device session's accumulated config-replay
// state and whether it has finished at least one replay.
type CachedInitFunc func() (channels []domain.ChannelInfo, ready bool)

// TracerouteHistoryFunc returns the most recent traceroute records.
type TracerouteHistoryFunc func(limit int) []domain.TracerouteRecord

// Service assembles Snapshots on demand from the live stores plus the
// connector/device-session accessors wired in by the runtime.
type Service struct {
	nodeStore         *domain.NodeStore
	chatStore         *domain.ChatStore
	connStatus        ConnectionStatusFunc
	cachedInit        CachedInitFunc
	tracerouteHistory TracerouteHistoryFunc

	recentMessagesPerChat int

	mu    sync.Mutex
	reads map[string]time.Time
}

func NewService(
	nodeStore *domain.NodeStore,
	chatStore *domain.ChatStore,
	connStatus ConnectionStatusFunc,
	cachedInit CachedInitFunc,
	tracerouteHistory TracerouteHistoryFunc,
	recentMessagesPerChat int,
) *Service {
	if recentMessagesPerChat <= 0 {
		recentMessagesPerChat = 50
	}

	return &Service{
		nodeStore:             nodeStore,
		chatStore:             chatStore,
		connStatus:            connStatus,
		cachedInit:            cachedInit,
		tracerouteHistory:     tracerouteHistory,
		recentMessagesPerChat: recentMessagesPerChat,
		reads:                 make(map[string]time.Time),
	}
}

// MarkRead records that chatKey has been read up to now, so the next
// Poll reports zero unread for it until new incoming messages arrive.
func (s *Service) MarkRead(chatKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[chatKey] = time.Now()
}

// Poll assembles a consistent point-in-time view of the mesh. It only
// takes RWMutex read locks on the stores, never blocking ingestion.
func (s *Service) Poll() Snapshot {
	nodes := s.nodeStore.SnapshotSorted()
	chats := s.chatStore.ChatListSorted()

	messages := make(map[string][]domain.ChatMessage, len(chats))
	unread := make(map[string]int, len(chats))

	s.mu.Lock()
	reads := make(map[string]time.Time, len(s.reads))
	for k, v := range s.reads {
		reads[k] = v
	}
	s.mu.Unlock()

	var channels []domain.ChannelInfo
	for _, chat := range chats {
		if chat.Type == domain.ChatTypeChannel {
			channels = append(channels, domain.ChannelInfo{Title: domain.ChatDisplayTitle(chat)})
		}

		all := s.chatStore.Messages(chat.Key)
		recent := all
		if len(recent) > s.recentMessagesPerChat {
			recent = recent[len(recent)-s.recentMessagesPerChat:]
		}
		messages[chat.Key] = recent

		lastRead := reads[chat.Key]
		count := 0
		for _, m := range all {
			if m.Direction == domain.MessageDirectionIn && m.At.After(lastRead) {
				count++
			}
		}
		unread[chat.Key] = count
	}

	telemetry := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		var kinds []string
		if n.BatteryLevel != nil {
			kinds = append(kinds, string(domain.TelemetryKindBatteryLevel))
		}
		if n.Voltage != nil {
			kinds = append(kinds, string(domain.TelemetryKindVoltage))
		}
		if n.ChannelUtilization != nil {
			kinds = append(kinds, string(domain.TelemetryKindChannelUtilization))
		}
		if n.AirUtilTx != nil {
			kinds = append(kinds, string(domain.TelemetryKindAirUtilTx))
		}
		if n.Temperature != nil {
			kinds = append(kinds, string(domain.TelemetryKindTemperature))
		}
		if n.Humidity != nil {
			kinds = append(kinds, string(domain.TelemetryKindHumidity))
		}
		if n.Pressure != nil {
			kinds = append(kinds, string(domain.TelemetryKindPressure))
		}
		if n.AirQualityIndex != nil {
			kinds = append(kinds, string(domain.TelemetryKindAirQualityIndex))
		}
		if len(kinds) > 0 {
			telemetry[n.NodeID] = kinds
		}
	}

	var traceroutes []domain.TracerouteRecord
	if s.tracerouteHistory != nil {
		traceroutes = s.tracerouteHistory(20)
	}

	return Snapshot{
		Connection:     s.connection(),
		Nodes:          nodes,
		Messages:       messages,
		Channels:       channels,
		UnreadCounts:   unread,
		TelemetryNodes: telemetry,
		Traceroutes:    traceroutes,
		DeviceConfig:   s.deviceConfig(),
	}
}

func (s *Service) connection() Connection {
	if s.connStatus == nil {
		return Connection{}
	}
	status, known := s.connStatus()
	if !known {
		return Connection{}
	}

	_, ready := s.cachedInitStateOrEmpty()

	return Connection{
		Connected:        status.State == connectors.ConnectionStateConnected,
		NodeResponsive:   status.State == connectors.ConnectionStateConnected && ready,
		Configuring:      status.State == connectors.ConnectionStateConnected && !ready,
		UserDisconnected: status.State == connectors.ConnectionStateDisconnected && status.Err == "",
		TransportName:    status.TransportName,
		Target:           status.Target,
		Err:              status.Err,
	}
}

func (s *Service) deviceConfig() DeviceConfig {
	channels, ready := s.cachedInitStateOrEmpty()

	return DeviceConfig{Channels: channels, Ready: ready}
}

func (s *Service) cachedInitStateOrEmpty() ([]domain.ChannelInfo, bool) {
	if s.cachedInit == nil {
		return nil, false
	}

	return s.cachedInit()
}
