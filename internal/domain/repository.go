package domain

import (
	"context"
	"time"
)

// NodeRepository persists node snapshots.
type NodeRepository interface {
	Upsert(ctx context.Context, n Node) error
	ListSortedByLastHeard(ctx context.Context) ([]Node, error)
	Delete(ctx context.Context, nodeID string) error
	SetFavorite(ctx context.Context, nodeID string, favorite bool) error
	SetIgnored(ctx context.Context, nodeID string, ignored bool) error
	MarkWelcomed(ctx context.Context, nodeID string, at time.Time) error
}

// ChatRepository persists chat metadata.
type ChatRepository interface {
	Upsert(ctx context.Context, c Chat) error
	ListSortedByLastSentByMe(ctx context.Context) ([]Chat, error)
}

// MessageRepository persists chat messages and delivery statuses.
type MessageRepository interface {
	Insert(ctx context.Context, m ChatMessage) (int64, error)
	LoadRecentPerChat(ctx context.Context, limit int) (map[string][]ChatMessage, error)
	UpdateStatusByDeviceMessageID(ctx context.Context, deviceMessageID string, status MessageStatus) error
}

// TracerouteRepository persists traceroute request history.
type TracerouteRepository interface {
	Upsert(ctx context.Context, rec TracerouteRecord) error
	ListRecent(ctx context.Context, limit int) ([]TracerouteRecord, error)
}

// AuditRepository appends an immutable record of operator actions.
type AuditRepository interface {
	Append(ctx context.Context, entry AuditEntry) error
}

// TelemetryRepository appends telemetry samples for time-series queries.
type TelemetryRepository interface {
	Append(ctx context.Context, sample TelemetrySample) error
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// SettingsRepository persists mesh-wide device-configurable settings.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}
