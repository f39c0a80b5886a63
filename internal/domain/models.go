package domain

import (
	"time"

	"github.com/skobkin/meshgo/internal/traceroute"
)

// ChatType classifies chat destination kind.
type ChatType int

const (
	ChatTypeChannel ChatType = iota + 1
	ChatTypeDM
)

// MessageDirection indicates whether a message was received or sent locally.
type MessageDirection int

const (
	MessageDirectionIn MessageDirection = iota + 1
	MessageDirectionOut
)

// MessageStatus tracks delivery progress for a chat message.
type MessageStatus int

const (
	MessageStatusPending MessageStatus = iota + 1
	MessageStatusSent
	MessageStatusAcked
	MessageStatusFailed
)

// Chat is a UI-facing chat summary record.
type Chat struct {
	Key            string
	Title          string
	Type           ChatType
	LastSentByMeAt time.Time
	UpdatedAt      time.Time
}

// ChatMessage is a single message item stored and shown in a chat timeline.
type ChatMessage struct {
	LocalID         int64
	DeviceMessageID string
	ChatKey         string
	Direction       MessageDirection
	Body            string
	Status          MessageStatus
	StatusReason    string
	At              time.Time
	MetaJSON        string
}

// MessageStatusUpdate updates delivery status by device message id.
type MessageStatusUpdate struct {
	DeviceMessageID string
	Status          MessageStatus
	Reason          string
	FromNodeNum     uint32
}

func ShouldTransitionMessageStatus(current, next MessageStatus) bool {
	if next == 0 || current == next {
		return false
	}
	if current == 0 {
		return true
	}

	switch next {
	case MessageStatusAcked:
		return current != MessageStatusAcked
	case MessageStatusFailed:
		return current != MessageStatusAcked && current != MessageStatusFailed
	case MessageStatusSent:
		return current == MessageStatusPending
	case MessageStatusPending:
		return false
	default:
		return false
	}
}

// Node stores the latest known node metadata and telemetry.
type Node struct {
	NodeID          string
	LongName        string
	ShortName       string
	Channel         *uint32
	Latitude        *float64
	Longitude       *float64
	Altitude        *int32
	BatteryLevel    *uint32
	Voltage         *float64
	Temperature     *float64
	Humidity        *float64
	Pressure        *float64
	AirQualityIndex *float64
	PowerVoltage    *float64
	PowerCurrent    *float64
	BoardModel      string
	Role            string
	IsUnmessageable *bool
	LastHeardAt     time.Time
	RSSI            *int
	SNR             *float64

	ChannelUtilization *float64
	AirUtilTx          *float64
	Uptime             *uint32
	PublicKey          []byte
	IsLicensed         *bool
	FirmwareVersion    string
	RebootCount        *uint32

	Favorite   bool
	Ignored    bool
	WelcomedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NodeUpdate is a bus event with node data and update source metadata.
type NodeUpdate struct {
	Node       Node
	LastHeard  time.Time
	FromPacket bool
	Type       NodeUpdateType
}

// NodeUpdateType identifies which radio frame kind produced a node update.
type NodeUpdateType string

const (
	NodeUpdateTypeUnknown          NodeUpdateType = ""
	NodeUpdateTypeNodeInfoSnapshot NodeUpdateType = "nodeinfo_snapshot"
	NodeUpdateTypeNodeInfoPacket   NodeUpdateType = "nodeinfo_packet"
	NodeUpdateTypeTelemetryPacket  NodeUpdateType = "telemetry_packet"
	NodeUpdateTypePositionPacket   NodeUpdateType = "position_packet"
)

// NodeDiscovered is emitted when a previously unknown node is seen in live traffic.
type NodeDiscovered struct {
	Node         Node
	NodeID       string
	DiscoveredAt time.Time
	Source       string
}

// ChannelList carries known device channels published by the radio.
type ChannelList struct {
	Items []ChannelInfo
}

// ChannelInfo describes one mesh channel index and title.
type ChannelInfo struct {
	Index int
	Title string
}

// TracerouteStatus describes the lifecycle state of one traceroute request.
type TracerouteStatus = traceroute.Status

const (
	TracerouteStatusStarted   = traceroute.StatusStarted
	TracerouteStatusProgress  = traceroute.StatusProgress
	TracerouteStatusCompleted = traceroute.StatusCompleted
	TracerouteStatusFailed    = traceroute.StatusFailed
	TracerouteStatusTimedOut  = traceroute.StatusTimedOut
)

// TracerouteRecord stores one traceroute run state for future history UI.
type TracerouteRecord struct {
	RequestID    string
	TargetNodeID string
	StartedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  time.Time
	Status       TracerouteStatus
	ForwardRoute []string
	ForwardSNR   []int32
	ReturnRoute  []string
	ReturnSNR    []int32
	ErrorText    string
	DurationMS   int64
}

// AuditEntry records one operator or automation action against the
// mesh, for an append-only audit trail.
type AuditEntry struct {
	At       time.Time
	Actor    string
	Action   string
	Resource string
	Details  string
	IP       string
}

// TelemetrySampleKind identifies which metric a TelemetrySample carries.
type TelemetrySampleKind string

const (
	TelemetryKindBatteryLevel       TelemetrySampleKind = "battery_level"
	TelemetryKindVoltage            TelemetrySampleKind = "voltage"
	TelemetryKindChannelUtilization TelemetrySampleKind = "channel_utilization"
	TelemetryKindAirUtilTx          TelemetrySampleKind = "air_util_tx"
	TelemetryKindTemperature        TelemetrySampleKind = "temperature"
	TelemetryKindHumidity           TelemetrySampleKind = "humidity"
	TelemetryKindPressure           TelemetrySampleKind = "pressure"
	TelemetryKindAirQualityIndex    TelemetrySampleKind = "air_quality_index"
)

// TelemetrySample is one time-series data point recorded for a node,
// feeding historical-telemetry queries and charts.
type TelemetrySample struct {
	NodeID string
	Kind   TelemetrySampleKind
	Value  float64
	At     time.Time
}
