package repo

import (
	"context"
	"database/sql"

	"stagegate/internal/domain"
)

func (r Repo) InsertNote(ctx context.Context, tx *sql.Tx, n domain.Note) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notes(id,entity_kind,entity_id,body,author_id,created_at) VALUES (?,?,?,?,?,?)`,
		n.ID, n.EntityKind, n.EntityID, n.Body, nullableStringPtr(n.AuthorID), n.CreatedAt)
	return err
}

// ListNotes returns the notes attached to one entity, newest-first.
func (r Repo) ListNotes(ctx context.Context, entityKind, entityID string) ([]domain.Note, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,entity_kind,entity_id,body,author_id,created_at FROM notes
WHERE entity_kind=? AND entity_id=? ORDER BY created_at DESC, id DESC`, entityKind, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Note
	for rows.Next() {
		var n domain.Note
		var author sql.NullString
		if err := rows.Scan(&n.ID, &n.EntityKind, &n.EntityID, &n.Body, &author, &n.CreatedAt); err != nil {
			return nil, err
		}
		if author.Valid {
			n.AuthorID = &author.String
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
