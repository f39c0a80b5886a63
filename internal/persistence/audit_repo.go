package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/skobkin/meshgo/internal/domain"
)

// AuditRepo implements domain.AuditRepository using SQLite. Append-only:
// nothing ever deletes or edits a row.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Append(ctx context.Context, entry domain.AuditEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log(at, actor, action, resource, details, ip)
		VALUES(?, ?, ?, ?, ?, ?)
	`, timeToUnixMillis(entry.At), entry.Actor, entry.Action, entry.Resource, nullableString(entry.Details), nullableString(entry.IP))
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}

	return nil
}

// ListRecent returns the most recent audit entries, newest first.
func (r *AuditRepo) ListRecent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT at, actor, action, resource, details, ip
		FROM audit_log
		ORDER BY at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			entry   domain.AuditEntry
			atMs    int64
			details sql.NullString
			ip      sql.NullString
		)
		if err := rows.Scan(&atMs, &entry.Actor, &entry.Action, &entry.Resource, &details, &ip); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.At = unixMillisToTime(atMs)
		if details.Valid {
			entry.Details = details.String
		}
		if ip.Valid {
			entry.IP = ip.String
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return out, nil
}
