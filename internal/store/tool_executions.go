package store

import (
	"context"
	"encoding/json"

	"github.com/forgecode-ai/forgecode/pkg/types"
)

// RecordToolExecution upserts a completed or failed tool call. Input and
// output are stored as their JSON encoding since their shape varies per
// tool; reporting queries decode what they need.
func (s *Store) RecordToolExecution(ctx context.Context, tp *types.ToolPart) error {
	input, _ := json.Marshal(tp.State.Input)
	output := tp.State.Output

	var started, ended int64
	if tp.State.Time != nil {
		started = tp.State.Time.Start
		if tp.State.Time.End != nil {
			ended = *tp.State.Time.End
		}
	}

	return s.exec(ctx, `
		INSERT INTO tool_executions (id, session_id, message_id, call_id, tool, status, input, output, error, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status     = excluded.status,
			input      = excluded.input,
			output     = excluded.output,
			error      = excluded.error,
			started_at = excluded.started_at,
			ended_at   = excluded.ended_at
	`, tp.ID, tp.SessionID, tp.MessageID, tp.CallID, tp.Tool, tp.State.Status,
		string(input), output, tp.State.Error, started, ended)
}

// ToolExecutionStats summarizes how often a tool has run and how long it
// took, for the CLI's usage reporting.
type ToolExecutionStats struct {
	Tool    string
	Count   int
	Errors  int
	AvgMs   float64
}

// ToolStats aggregates tool_executions by tool name.
func (s *Store) ToolStats(ctx context.Context, sessionID string) ([]ToolExecutionStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tool,
			COUNT(*),
			SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END),
			AVG(CASE WHEN ended_at > started_at THEN ended_at - started_at ELSE 0 END)
		FROM tool_executions
		WHERE session_id = ?
		GROUP BY tool
		ORDER BY COUNT(*) DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ToolExecutionStats
	for rows.Next() {
		var r ToolExecutionStats
		if err := rows.Scan(&r.Tool, &r.Count, &r.Errors, &r.AvgMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
