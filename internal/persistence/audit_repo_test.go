package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/skobkin/meshgo/internal/domain"
)

func TestAuditRepo_AppendAndListRecent_NewestFirst(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewAuditRepo(db)
	base := time.Now().UTC().Truncate(time.Millisecond)

	entries := []domain.AuditEntry{
		{At: base, Actor: "operator", Action: "node.delete", Resource: "!00000001"},
		{At: base.Add(time.Second), Actor: "operator", Action: "settings.set", Resource: "auto_ack", Details: "true"},
		{At: base.Add(2 * time.Second), Actor: "api", Action: "message.send", Resource: "dm:!00000002", IP: "127.0.0.1"},
	}
	for _, e := range entries {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("append audit entry: %v", err)
		}
	}

	got, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Action != "message.send" || got[0].IP != "127.0.0.1" {
		t.Fatalf("unexpected newest entry: %+v", got[0])
	}
	if got[1].Action != "settings.set" || got[1].Details != "true" {
		t.Fatalf("unexpected second entry: %+v", got[1])
	}
}

func TestAuditRepo_ListRecent_EmptyWhenNoEntries(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewAuditRepo(db)

	got, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no entries, got %d", len(got))
	}
}
