package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/skobkin/meshgo/internal/domain"
)

// TelemetryRepo implements domain.TelemetryRepository using SQLite,
// storing one row per metric sample for historical charting.
type TelemetryRepo struct {
	db *sql.DB
}

func NewTelemetryRepo(db *sql.DB) *TelemetryRepo {
	return &TelemetryRepo{db: db}
}

func (r *TelemetryRepo) Append(ctx context.Context, sample domain.TelemetrySample) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO telemetry_samples(node_id, kind, value, at)
		VALUES(?, ?, ?, ?)
	`, sample.NodeID, string(sample.Kind), sample.Value, timeToUnixMillis(sample.At))
	if err != nil {
		return fmt.Errorf("append telemetry sample: %w", err)
	}

	return nil
}

// Prune deletes samples older than olderThan and returns the number of
// rows removed.
func (r *TelemetryRepo) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM telemetry_samples WHERE at < ?;`, timeToUnixMillis(olderThan))
	if err != nil {
		return 0, fmt.Errorf("prune telemetry samples: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned telemetry samples: %w", err)
	}

	return rowsAffected, nil
}

// ListByNode returns the samples of one kind recorded for nodeID since
// the given time, oldest first.
func (r *TelemetryRepo) ListByNode(ctx context.Context, nodeID string, kind domain.TelemetrySampleKind, since time.Time) ([]domain.TelemetrySample, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT node_id, kind, value, at
		FROM telemetry_samples
		WHERE node_id = ? AND kind = ? AND at >= ?
		ORDER BY at ASC
	`, nodeID, string(kind), timeToUnixMillis(since))
	if err != nil {
		return nil, fmt.Errorf("list telemetry samples: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.TelemetrySample
	for rows.Next() {
		var (
			sample domain.TelemetrySample
			kindRaw string
			atMs    int64
		)
		if err := rows.Scan(&sample.NodeID, &kindRaw, &sample.Value, &atMs); err != nil {
			return nil, fmt.Errorf("scan telemetry sample: %w", err)
		}
		sample.Kind = domain.TelemetrySampleKind(kindRaw)
		sample.At = unixMillisToTime(atMs)
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate telemetry samples: %w", err)
	}

	return out, nil
}
