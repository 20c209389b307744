package store

import (
	"context"
	"time"

	"github.com/forgecode-ai/forgecode/pkg/types"
)

// RecordTokenUsage upserts the token accounting for one message. Messages
// are updated in place as streaming fills in usage, so this is keyed by
// (session_id, message_id) rather than appended.
func (s *Store) RecordTokenUsage(ctx context.Context, sessionID, messageID string, usage *types.TokenUsage) error {
	return s.exec(ctx, `
		INSERT INTO token_usage (session_id, message_id, input_tokens, output_tokens, reasoning_tokens, cache_read, cache_write, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, message_id) DO UPDATE SET
			input_tokens     = excluded.input_tokens,
			output_tokens    = excluded.output_tokens,
			reasoning_tokens = excluded.reasoning_tokens,
			cache_read       = excluded.cache_read,
			cache_write      = excluded.cache_write,
			recorded_at      = excluded.recorded_at
	`, sessionID, messageID, usage.Input, usage.Output, usage.Reasoning, usage.Cache.Read, usage.Cache.Write, time.Now().UnixMilli())
}

// SessionTokenTotals sums every recorded token_usage row for a session.
type SessionTokenTotals struct {
	Input     int
	Output    int
	Reasoning int
	CacheRead int
	CacheWrite int
}

// TokenTotals aggregates a session's token_usage rows.
func (s *Store) TokenTotals(ctx context.Context, sessionID string) (SessionTokenTotals, error) {
	var t SessionTokenTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(reasoning_tokens), 0), COALESCE(SUM(cache_read), 0), COALESCE(SUM(cache_write), 0)
		FROM token_usage WHERE session_id = ?
	`, sessionID).Scan(&t.Input, &t.Output, &t.Reasoning, &t.CacheRead, &t.CacheWrite)
	return t, err
}
