package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stagegate/internal/domain"
	"stagegate/internal/event"
	"stagegate/internal/history"
	"stagegate/internal/repo"
	"stagegate/internal/stage"
)

// ErrInvalidTransition is returned when advancing a project that is
// already in a terminal state.
var ErrInvalidTransition = errors.New("invalid transition")

// EventSink receives lifecycle events fired after a transaction commits.
// Satisfied by notify.Dispatcher.
type EventSink interface {
	Enqueue(ev event.Event, project domain.Project)
}

// Engine executes project lifecycle transitions: it validates them,
// commits the record mutation atomically with the history append, and
// fires typed events for the notification router. Notification is a side
// effect, never a precondition: once the transaction commits, the
// transition has succeeded regardless of what happens to deliveries.
type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	History history.Writer
	Events  EventSink
	Now     func() time.Time
}

func New(db *sql.DB, sink EventSink) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		History: history.Writer{DB: db},
		Events:  sink,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) fire(project domain.Project, events ...event.Event) {
	if e.Events == nil {
		return
	}
	for _, ev := range events {
		e.Events.Enqueue(ev, project)
	}
}

// CreateProjectOptions are parameters for creating a project.
type CreateProjectOptions struct {
	ID       string
	Title    string
	Deadline *string
	OwnerID  string
	ActorID  string
}

// CreateProject creates the project in the initial stage and eagerly
// creates one stage record per defined record type, each populated with
// only the project linkage and default fields. The ProjectCreated event
// fires after everything exists, so listeners may assume the records are
// present.
func (e Engine) CreateProject(ctx context.Context, opts CreateProjectOptions) (domain.Project, error) {
	if opts.Title == "" {
		return domain.Project{}, errors.New("title is required")
	}
	if opts.OwnerID != "" {
		if _, err := e.Repo.GetUser(ctx, opts.OwnerID); err != nil {
			return domain.Project{}, fmt.Errorf("owner %s: %w", opts.OwnerID, err)
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	p := domain.Project{
		ID:        id,
		Title:     opts.Title,
		Status:    stage.Ideation,
		Deadline:  opts.Deadline,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if opts.OwnerID != "" {
		p.OwnerID = &opts.OwnerID
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	for _, rt := range stage.RecordTypes() {
		fields, err := domain.NewFields(rt)
		if err != nil {
			return domain.Project{}, err
		}
		encoded, err := domain.EncodeFields(fields)
		if err != nil {
			return domain.Project{}, err
		}
		rec := domain.StageRecord{
			ID:         uuid.New().String(),
			ProjectID:  p.ID,
			RecordType: rt,
			FieldsJSON: encoded,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := e.Repo.InsertStageRecord(ctx, tx, rec); err != nil {
			return domain.Project{}, fmt.Errorf("insert %s record: %w", rt, err)
		}
	}
	if err := e.History.Append(ctx, tx, p.ID, opts.ActorID, fmt.Sprintf("Project %q created", p.Title)); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	e.fire(p, event.NewProjectCreated(p.ID))
	return p, nil
}

// Advance moves a project to the next stage in canonical order, or to
// Completed when the current stage is the last one. The status change and
// the history entry commit together.
func (e Engine) Advance(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	if stage.IsTerminal(p.Status) {
		return p, fmt.Errorf("%w: project %s is %s", ErrInvalidTransition, p.ID, p.Status)
	}
	from := p.Status
	next, ok := stage.Next(from)
	if !ok {
		next = stage.Completed
	}

	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProjectStatus(ctx, tx, p.ID, next, now); err != nil {
		return p, err
	}
	desc := fmt.Sprintf("Stage advanced from %s to %s", stage.Label(from), stage.Label(next))
	if err := e.History.Append(ctx, tx, p.ID, actorID, desc); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.Status = next
	p.UpdatedAt = now
	e.fire(p, event.NewStageChanged(p.ID, next))
	return p, nil
}

// Cancel moves any non-terminal project to Cancelled. Cancelling an
// already-cancelled project is a no-op: no second history entry, no event.
func (e Engine) Cancel(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	if p.Status == stage.Cancelled {
		return p, nil
	}
	if p.Status == stage.Completed {
		return p, fmt.Errorf("%w: project %s is %s", ErrInvalidTransition, p.ID, p.Status)
	}

	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProjectStatus(ctx, tx, p.ID, stage.Cancelled, now); err != nil {
		return p, err
	}
	if err := e.History.Append(ctx, tx, p.ID, actorID, "Project cancelled"); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.Status = stage.Cancelled
	p.UpdatedAt = now
	e.fire(p, event.NewStageChanged(p.ID, stage.Cancelled))
	return p, nil
}

// UpdateProjectOptions carries the mutable project details. Nil pointers
// leave the field unchanged.
type UpdateProjectOptions struct {
	ID       string
	Title    *string
	Deadline *string
	OwnerID  *string
	ActorID  string
}

func (e Engine) UpdateProject(ctx context.Context, opts UpdateProjectOptions) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, opts.ID)
	if err != nil {
		return p, err
	}
	if opts.Title != nil {
		if *opts.Title == "" {
			return p, errors.New("title cannot be empty")
		}
		p.Title = *opts.Title
	}
	if opts.Deadline != nil {
		p.Deadline = opts.Deadline
	}
	if opts.OwnerID != nil {
		if *opts.OwnerID == "" {
			p.OwnerID = nil
		} else {
			if _, err := e.Repo.GetUser(ctx, *opts.OwnerID); err != nil {
				return p, fmt.Errorf("owner %s: %w", *opts.OwnerID, err)
			}
			p.OwnerID = opts.OwnerID
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()

	p.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.History.Append(ctx, tx, p.ID, opts.ActorID, "Project details updated"); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	e.fire(p, event.NewProjectUpdated(p.ID))
	return p, nil
}

// UpdateStageRecord replaces a stage record's fields. The record may only
// be mutated while the project is at or past its stage; sign-off field
// changes fire their corresponding events after commit.
func (e Engine) UpdateStageRecord(ctx context.Context, projectID string, st stage.Stage, fieldsJSON, actorID string) (domain.StageRecord, error) {
	rt, ok := stage.RecordTypeFor(st)
	if !ok {
		return domain.StageRecord{}, fmt.Errorf("stage %s has no record", st)
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.StageRecord{}, err
	}
	switch stage.RelativeProgress(st, p.Status) {
	case stage.ProgressNotReached:
		return domain.StageRecord{}, fmt.Errorf("project %s has not reached %s", p.ID, stage.Label(st))
	case stage.ProgressCancelled:
		return domain.StageRecord{}, fmt.Errorf("project %s is cancelled", p.ID)
	}
	newFields, err := domain.DecodeFields(domain.StageRecord{RecordType: rt, FieldsJSON: fieldsJSON})
	if err != nil {
		return domain.StageRecord{}, fmt.Errorf("decode fields: %w", err)
	}
	if err := newFields.Validate(); err != nil {
		return domain.StageRecord{}, err
	}
	encoded, err := domain.EncodeFields(newFields)
	if err != nil {
		return domain.StageRecord{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StageRecord{}, err
	}
	defer tx.Rollback()

	rec, err := e.Repo.GetStageRecordTx(ctx, tx, projectID, rt)
	if err != nil {
		return rec, err
	}
	oldFields, err := domain.DecodeFields(rec)
	if err != nil {
		return rec, fmt.Errorf("decode stored fields: %w", err)
	}

	rec.FieldsJSON = encoded
	rec.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateStageRecord(ctx, tx, rec); err != nil {
		return rec, err
	}
	if err := e.History.Append(ctx, tx, p.ID, actorID, fmt.Sprintf("%s record updated", stage.Label(st))); err != nil {
		return rec, err
	}
	if err := tx.Commit(); err != nil {
		return rec, err
	}
	e.fire(p, signoffEvents(p.ID, rt, oldFields, newFields)...)
	return rec, nil
}

// StageReady reports the stage record's own readiness predicate. The
// engine never consults it on advance; UI-level callers do.
func (e Engine) StageReady(ctx context.Context, projectID string, st stage.Stage) (bool, error) {
	rt, ok := stage.RecordTypeFor(st)
	if !ok {
		return false, fmt.Errorf("stage %s has no record", st)
	}
	rec, err := e.Repo.GetStageRecord(ctx, projectID, rt)
	if err != nil {
		return false, err
	}
	fields, err := domain.DecodeFields(rec)
	if err != nil {
		return false, err
	}
	return fields.Ready(), nil
}

// StageProgress is one row of a project's display progress.
type StageProgress struct {
	Stage    stage.Stage    `json:"stage"`
	Label    string         `json:"label"`
	Color    string         `json:"color"`
	Progress stage.Progress `json:"progress"`
}

// Progress classifies every ordered stage against the project's current
// status, for display.
func (e Engine) Progress(ctx context.Context, projectID string) ([]StageProgress, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var out []StageProgress
	for _, st := range stage.Ordered() {
		out = append(out, StageProgress{
			Stage:    st,
			Label:    stage.Label(st),
			Color:    stage.Color(st),
			Progress: stage.RelativeProgress(st, p.Status),
		})
	}
	return out, nil
}

// AddNote attaches a note to an entity. Notes on a project also land in
// its history; notes fire no notifications.
func (e Engine) AddNote(ctx context.Context, entityKind, entityID, body, actorID string) (domain.Note, error) {
	if entityKind == "" || entityID == "" {
		return domain.Note{}, errors.New("entity-kind and entity-id required")
	}
	if body == "" {
		return domain.Note{}, errors.New("note body required")
	}
	if entityKind == "project" {
		if _, err := e.Repo.GetProject(ctx, entityID); err != nil {
			return domain.Note{}, err
		}
	}
	n := domain.Note{
		ID:         uuid.New().String(),
		EntityKind: entityKind,
		EntityID:   entityID,
		Body:       body,
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	if actorID != "" {
		n.AuthorID = &actorID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return n, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertNote(ctx, tx, n); err != nil {
		return n, err
	}
	if entityKind == "project" {
		if err := e.History.Append(ctx, tx, entityID, actorID, "Note added"); err != nil {
			return n, err
		}
	}
	if err := tx.Commit(); err != nil {
		return n, err
	}
	return n, nil
}
