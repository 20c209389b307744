package store

import (
	"context"

	"github.com/forgecode-ai/forgecode/pkg/types"
)

// SaveMessage upserts a message's header fields. Part content stays in
// the JSON key-value store; this row exists to let queries join across
// sessions, tool executions, and token usage without reloading JSON.
func (s *Store) SaveMessage(ctx context.Context, msg *types.Message) error {
	var finish string
	if msg.Finish != nil {
		finish = *msg.Finish
	}
	return s.exec(ctx, `
		INSERT INTO messages (id, session_id, role, model_id, provider_id, finish, cost, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role        = excluded.role,
			model_id    = excluded.model_id,
			provider_id = excluded.provider_id,
			finish      = excluded.finish,
			cost        = excluded.cost,
			updated_at  = excluded.updated_at
	`, msg.ID, msg.SessionID, msg.Role, msg.ModelID, msg.ProviderID, finish, msg.Cost,
		msg.Time.Created, updatedAt(msg))
}

func updatedAt(msg *types.Message) int64 {
	if msg.Time.Updated != nil {
		return *msg.Time.Updated
	}
	return msg.Time.Created
}

// MessageCount returns how many messages a session has recorded.
func (s *Store) MessageCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}
