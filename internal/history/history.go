// Package history writes the append-only project audit trail. Entries are
// only ever inserted; corrections are made by appending, never by mutating.
package history

import (
	"context"
	"database/sql"
	"time"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append inserts one history entry inside the caller's transaction. An
// empty actorID is stored as NULL and rendered as "System" at display time.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, projectID, actorID, description string) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO project_history(project_id,actor_id,description,created_at) VALUES (?,?,?,?)`,
		projectID, nullable(actorID), description, ts)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
