package store

import (
	"context"
	"encoding/json"

	"github.com/forgecode-ai/forgecode/internal/audit"
	"github.com/forgecode-ai/forgecode/pkg/types"
)

// MirrorAuditLog registers this store as log's persister, so every entry
// internal/audit.Log records (from the permission checker's deny paths,
// grant mutators, and any bus-published AuditRecorded event) is durably
// written here too, in addition to living in the log's in-memory ring.
func (s *Store) MirrorAuditLog(log *audit.Log) {
	log.SetPersister(func(entry types.AuditEntry) {
		_ = s.SaveAuditEntry(context.Background(), entry)
	})
}

// SaveAuditEntry persists an already-assigned AuditEntry (internal/audit.Log
// owns id assignment; this is a durable mirror of its in-memory log, not a
// second source of truth).
func (s *Store) SaveAuditEntry(ctx context.Context, entry types.AuditEntry) error {
	var detail []byte
	if entry.Detail != nil {
		var err error
		detail, err = json.Marshal(entry.Detail)
		if err != nil {
			return err
		}
	}
	return s.exec(ctx, `
		INSERT INTO audit (id, timestamp, action, subject, result, risk, duration_ms, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, entry.ID, entry.Timestamp.UnixMilli(), entry.Action, entry.Subject, string(entry.Result),
		entry.Risk, entry.Duration.Milliseconds(), string(detail))
}

// AuditCount returns how many audit rows are persisted for the given action,
// or every action if action is empty.
func (s *Store) AuditCount(ctx context.Context, action string) (int, error) {
	var n int
	var err error
	if action == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit WHERE action = ?`, action).Scan(&n)
	}
	return n, err
}
