package connectors

import (
	"time"

	"github.com/skobkin/meshgo/internal/traceroute"
)

// TracerouteEvent is the decoded content of a TRACEROUTE_APP reply packet,
// published on TopicTraceroute by the codec as soon as it is parsed.
type TracerouteEvent struct {
	From       uint32
	To         uint32
	PacketID   uint32
	RequestID  uint32
	ReplyID    uint32
	Route      []uint32
	SnrTowards []int32
	RouteBack  []uint32
	SnrBack    []int32
	IsComplete bool
}

// TracerouteStatus is the lifecycle state of a traceroute request as
// reported to UI subscribers of TopicTracerouteUpdate.
type TracerouteStatus = traceroute.Status

const (
	TracerouteStatusStarted   = traceroute.StatusStarted
	TracerouteStatusProgress  = traceroute.StatusProgress
	TracerouteStatusCompleted = traceroute.StatusCompleted
	TracerouteStatusTimedOut  = traceroute.StatusTimedOut
	TracerouteStatusFailed    = traceroute.StatusFailed
)

// TracerouteUpdate is a point-in-time progress snapshot of one pending
// traceroute request, rebuilt and republished on every state change.
type TracerouteUpdate struct {
	RequestID    uint32
	TargetNodeID string
	StartedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  time.Time
	Status       TracerouteStatus
	ForwardRoute []string
	ForwardSNR   []int32
	ReturnRoute  []string
	ReturnSNR    []int32
	Error        string
	DurationMS   int64
}
