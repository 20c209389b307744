package store

import (
	"context"
	"database/sql"

	"github.com/forgecode-ai/forgecode/pkg/types"
)

// SaveSession upserts a session's identity and timestamps. It does not
// persist the full Session (summary, diffs, revert state) — that detail
// stays in the JSON key-value store; this mirror exists for queries the
// file store can't answer cheaply (recent sessions, session counts).
func (s *Store) SaveSession(ctx context.Context, sess *types.Session) error {
	var parentID sql.NullString
	if sess.ParentID != nil {
		parentID = sql.NullString{String: *sess.ParentID, Valid: true}
	}
	return s.exec(ctx, `
		INSERT INTO sessions (id, project_id, directory, parent_id, title, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			directory  = excluded.directory,
			parent_id  = excluded.parent_id,
			title      = excluded.title,
			version    = excluded.version,
			updated_at = excluded.updated_at
	`, sess.ID, sess.ProjectID, sess.Directory, parentID, sess.Title, sess.Version, sess.Time.Created, sess.Time.Updated)
}

// DeleteSession removes a session row. Messages referencing it are left
// in place (their session_id foreign key becomes dangling); ON DELETE
// CASCADE is deliberately not used so that deleting a session can never
// silently erase its tool-execution and token-usage history.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.exec(ctx, `DELETE FROM sessions WHERE id = ?`, id)
}

// SessionRow is a denormalized sessions-table read, for CLI/reporting use.
type SessionRow struct {
	ID        string
	Title     string
	Directory string
	CreatedAt int64
	UpdatedAt int64
}

// RecentSessions returns up to limit sessions ordered by most recently updated.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, directory, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.ID, &r.Title, &r.Directory, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
