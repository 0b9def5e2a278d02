package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"stagegate/internal/domain"
	"stagegate/internal/stage"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const projectColumns = `id,title,status,deadline,owner_id,created_at,updated_at`

func scanProjectRow(row *sql.Row) (domain.Project, error) {
	var p domain.Project
	var status string
	var deadline, owner sql.NullString
	err := row.Scan(&p.ID, &p.Title, &status, &deadline, &owner, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Status = stage.Stage(status)
	if deadline.Valid {
		p.Deadline = &deadline.String
	}
	if owner.Valid {
		p.OwnerID = &owner.String
	}
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.Title, string(p.Status), nullableStringPtr(p.Deadline), nullableStringPtr(p.OwnerID), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProjectRow(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProjectRow(tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

type ProjectFilters struct {
	Status string
	Owner  string
	Limit  int
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Owner != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, f.Owner)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + projectColumns + ` FROM projects ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		var status string
		var deadline, owner sql.NullString
		if err := rows.Scan(&p.ID, &p.Title, &status, &deadline, &owner, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Status = stage.Stage(status)
		if deadline.Valid {
			p.Deadline = &deadline.String
		}
		if owner.Valid {
			p.OwnerID = &owner.String
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProjectStatus(ctx context.Context, tx *sql.Tx, id string, status stage.Stage, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET status=?, updated_at=? WHERE id=?`, string(status), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET title=?, deadline=?, owner_id=?, updated_at=? WHERE id=?`,
		p.Title, nullableStringPtr(p.Deadline), nullableStringPtr(p.OwnerID), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const stageRecordColumns = `id,project_id,record_type,fields_json,created_at,updated_at`

func (r Repo) InsertStageRecord(ctx context.Context, tx *sql.Tx, rec domain.StageRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stage_records(`+stageRecordColumns+`) VALUES (?,?,?,?,?,?)`,
		rec.ID, rec.ProjectID, string(rec.RecordType), rec.FieldsJSON, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func scanStageRecordRow(row *sql.Row) (domain.StageRecord, error) {
	var rec domain.StageRecord
	var rt string
	err := row.Scan(&rec.ID, &rec.ProjectID, &rt, &rec.FieldsJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	rec.RecordType = stage.RecordType(rt)
	return rec, err
}

func (r Repo) GetStageRecord(ctx context.Context, projectID string, rt stage.RecordType) (domain.StageRecord, error) {
	return scanStageRecordRow(r.DB.QueryRowContext(ctx,
		`SELECT `+stageRecordColumns+` FROM stage_records WHERE project_id=? AND record_type=?`, projectID, string(rt)))
}

func (r Repo) GetStageRecordTx(ctx context.Context, tx *sql.Tx, projectID string, rt stage.RecordType) (domain.StageRecord, error) {
	return scanStageRecordRow(tx.QueryRowContext(ctx,
		`SELECT `+stageRecordColumns+` FROM stage_records WHERE project_id=? AND record_type=?`, projectID, string(rt)))
}

func (r Repo) ListStageRecords(ctx context.Context, projectID string) ([]domain.StageRecord, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+stageRecordColumns+` FROM stage_records WHERE project_id=? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StageRecord
	for rows.Next() {
		var rec domain.StageRecord
		var rt string
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &rt, &rec.FieldsJSON, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.RecordType = stage.RecordType(rt)
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (r Repo) UpdateStageRecord(ctx context.Context, tx *sql.Tx, rec domain.StageRecord) error {
	res, err := tx.ExecContext(ctx, `UPDATE stage_records SET fields_json=?, updated_at=? WHERE id=?`,
		rec.FieldsJSON, rec.UpdatedAt, rec.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListHistory returns a project's audit trail newest-first.
func (r Repo) ListHistory(ctx context.Context, projectID string, limit int) ([]domain.HistoryEntry, error) {
	query := `SELECT id,project_id,actor_id,description,created_at FROM project_history WHERE project_id=? ORDER BY created_at DESC, id DESC`
	args := []any{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		var actor sql.NullString
		if err := rows.Scan(&h.ID, &h.ProjectID, &actor, &h.Description, &h.CreatedAt); err != nil {
			return nil, err
		}
		if actor.Valid {
			h.ActorID = &actor.String
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
