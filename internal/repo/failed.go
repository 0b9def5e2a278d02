package repo

import (
	"context"
	"time"

	"stagegate/internal/domain"
)

// RecordFailedNotification dead-letters a notification job after its
// retries are exhausted.
func (r Repo) RecordFailedNotification(ctx context.Context, f domain.FailedNotification) error {
	if f.CreatedAt == "" {
		f.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO failed_notifications(project_id,event_type,reason,attempts,created_at) VALUES (?,?,?,?,?)`,
		f.ProjectID, f.EventType, f.Reason, f.Attempts, f.CreatedAt)
	return err
}

func (r Repo) ListFailedNotifications(ctx context.Context, limit int) ([]domain.FailedNotification, error) {
	query := `SELECT id,project_id,event_type,reason,attempts,created_at FROM failed_notifications ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FailedNotification
	for rows.Next() {
		var f domain.FailedNotification
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.EventType, &f.Reason, &f.Attempts, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}
