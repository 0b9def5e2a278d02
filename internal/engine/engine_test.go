package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stagegate/internal/db"
	"stagegate/internal/domain"
	"stagegate/internal/engine"
	"stagegate/internal/event"
	"stagegate/internal/migrate"
	"stagegate/internal/repo"
	"stagegate/internal/stage"
)

type captureSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *captureSink) Enqueue(ev event.Event, _ domain.Project) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureSink) types() []event.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Type, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Type())
	}
	return out
}

type testEnv struct {
	Engine engine.Engine
	Sink   *captureSink
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sink := &captureSink{}
	eng := engine.New(conn, sink)
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	eng.History.Now = eng.Now
	return testEnv{Engine: eng, Sink: sink, Ctx: context.Background()}
}

func TestCreateProjectSeedsAllStageRecords(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{Title: "Billing revamp", ActorID: "alice"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if p.Status != stage.Ideation {
		t.Fatalf("new project status = %s, want %s", p.Status, stage.Ideation)
	}
	recs, err := env.Engine.Repo.ListStageRecords(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(recs) != len(stage.RecordTypes()) {
		t.Fatalf("got %d stage records, want %d", len(recs), len(stage.RecordTypes()))
	}
	seen := map[stage.RecordType]bool{}
	for _, rec := range recs {
		if rec.ProjectID != p.ID {
			t.Errorf("record %s belongs to %s", rec.RecordType, rec.ProjectID)
		}
		fields, err := domain.DecodeFields(rec)
		if err != nil {
			t.Fatalf("decode %s: %v", rec.RecordType, err)
		}
		if fields.Ready() {
			t.Errorf("fresh %s record reports ready", rec.RecordType)
		}
		seen[rec.RecordType] = true
	}
	for _, rt := range stage.RecordTypes() {
		if !seen[rt] {
			t.Errorf("missing %s record", rt)
		}
	}
	hist, err := env.Engine.Repo.ListHistory(env.Ctx, p.ID, 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("got %d history entries, want 1", len(hist))
	}
	if got := env.Sink.types(); len(got) != 1 || got[0] != event.TypeProjectCreated {
		t.Fatalf("events after create = %v", got)
	}
}

func TestCreateProjectRequiresTitle(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{}); err == nil {
		t.Fatal("expected error for empty title")
	}
}

func TestAdvanceWalksOrderedStagesToCompleted(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{Title: "rollout", ActorID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	want := append(stage.Ordered()[1:], stage.Completed)
	for _, next := range want {
		p, err = env.Engine.Advance(env.Ctx, p.ID, "alice")
		if err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
		if p.Status != next {
			t.Fatalf("status = %s, want %s", p.Status, next)
		}
	}
	hist, err := env.Engine.Repo.ListHistory(env.Ctx, p.ID, 50)
	if err != nil {
		t.Fatal(err)
	}
	// one create plus one entry per advance
	if len(hist) != 1+len(want) {
		t.Fatalf("got %d history entries, want %d", len(hist), 1+len(want))
	}
}

func TestAdvanceTerminalFailsWithoutMutation(t *testing.T) {
	env := newTestEnv(t)
	p, _ := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{Title: "done", ActorID: "a"})
	for {
		var err error
		p, err = env.Engine.Advance(env.Ctx, p.ID, "a")
		if err != nil {
			t.Fatal(err)
		}
		if p.Status == stage.Completed {
			break
		}
	}
	before, _ := env.Engine.Repo.ListHistory(env.Ctx, p.ID, 100)
	_, err := env.Engine.Advance(env.Ctx, p.ID, "a")
	if !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("advance completed = %v, want ErrInvalidTransition", err)
	}
	got, _ := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	if got.Status != stage.Completed {
		t.Fatalf("status mutated to %s", got.Status)
	}
	after, _ := env.Engine.Repo.ListHistory(env.Ctx, p.ID, 100)
	if len(after) != len(before) {
		t.Fatalf("failed advance appended history: %d -> %d", len(before), len(after))
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	p, _ := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{Title: "doomed", ActorID: "a"})
	p, err := env.Engine.Cancel(env.Ctx, p.ID, "a")
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != stage.Cancelled {
		t.Fatalf("status = %s", p.Status)
	}
	// second cancel: no error, no new history, no new event
	before, _ := env.Engine.Repo.ListHistory(env.Ctx, p.ID, 100)
	beforeEvents := len(env.Sink.types())
	if _, err := env.Engine.Cancel(env.Ctx, p.ID, "a"); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	after, _ := env.Engine.Repo.ListHistory(env.Ctx, p.ID, 100)
	if len(after) != len(before) {
		t.Fatal("repeat cancel appended history")
	}
	if len(env.Sink.types()) != beforeEvents {
		t.Fatal("repeat cancel fired an event")
	}
	// advancing a cancelled project is invalid
	if _, err := env.Engine.Advance(env.Ctx, p.ID, "a"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("advance cancelled = %v", err)
	}
}

func TestCancelCompletedFails(t *testing.T) {
	env := newTestEnv(t)
	p, _ := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{Title: "shipped", ActorID: "a"})
	for p.Status != stage.Completed {
		var err error
		p, err = env.Engine.Advance(env.Ctx, p.ID, "a")
		if err != nil {
			t.Fatal(err)
		}
	}
	if _, err := env.Engine.Cancel(env.Ctx, p.ID, "a"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("cancel completed = %v, want ErrInvalidTransition", err)
	}
}

func TestUpdateStageRecordGuardsPosition(t *testing.T) {
	env := newTestEnv(t)
	p, _ := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{Title: "guarded", ActorID: "a"})
	// project is at ideation; the testing record is out of reach
	_, err := env.Engine.UpdateStageRecord(env.Ctx, p.ID, stage.Testing, `{"uat_requested":true}`, "a")
	if err == nil {
		t.Fatal("expected error updating a not-yet-reached record")
	}
	// the current stage's record is editable
	if _, err := env.Engine.UpdateStageRecord(env.Ctx, p.ID, stage.Ideation, `{"summary":"idea","submitter_signoff":"approved"}`, "a"); err != nil {
		t.Fatalf("update ideation: %v", err)
	}
	// past records stay editable after advancing
	p, _ = env.Engine.Advance(env.Ctx, p.ID, "a")
	if _, err := env.Engine.UpdateStageRecord(env.Ctx, p.ID, stage.Ideation, `{"summary":"revised"}`, "a"); err != nil {
		t.Fatalf("update past record: %v", err)
	}
	// records of a cancelled project are frozen
	p, _ = env.Engine.Cancel(env.Ctx, p.ID, "a")
	if _, err := env.Engine.UpdateStageRecord(env.Ctx, p.ID, stage.Ideation, `{"summary":"too late"}`, "a"); err == nil {
		t.Fatal("expected error updating a cancelled project's record")
	}
}

func TestUpdateStageRecordFiresSignoffEvents(t *testing.T) {
	env := newTestEnv(t)
	p, _ := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{Title: "signoffs", ActorID: "a"})
	p, _ = env.Engine.Advance(env.Ctx, p.ID, "a") // feasibility

	if _, err := env.Engine.UpdateStageRecord(env.Ctx, p.ID, stage.Feasibility, `{"assessment":"viable","decision":"approved"}`, "a"); err != nil {
		t.Fatal(err)
	}
	types := env.Sink.types()
	if types[len(types)-1] != event.TypeFeasibilityApproved {
		t.Fatalf("last event = %s, want %s", types[len(types)-1], event.TypeFeasibilityApproved)
	}
	// re-saving the same decision fires nothing
	n := len(env.Sink.types())
	if _, err := env.Engine.UpdateStageRecord(env.Ctx, p.ID, stage.Feasibility, `{"assessment":"still viable","decision":"approved"}`, "a"); err != nil {
		t.Fatal(err)
	}
	if len(env.Sink.types()) != n {
		t.Fatal("unchanged sign-off fired an event")
	}
}

func TestUpdateStageRecordTestingSignoffs(t *testing.T) {
	env := newTestEnv(t)
	p, _ := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{Title: "qa", ActorID: "a"})
	for p.Status != stage.Testing {
		p, _ = env.Engine.Advance(env.Ctx, p.ID, "a")
	}
	if _, err := env.Engine.UpdateStageRecord(env.Ctx, p.ID, stage.Testing, `{"uat_requested":true}`, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateStageRecord(env.Ctx, p.ID, stage.Testing, `{"uat_requested":true,"uat_signoff":"rejected"}`, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateStageRecord(env.Ctx, p.ID, stage.Testing, `{"uat_requested":true,"uat_signoff":"approved"}`, "a"); err != nil {
		t.Fatal(err)
	}
	types := env.Sink.types()
	var got []event.Type
	for _, ty := range types {
		switch ty {
		case event.TypeUATRequested, event.TypeUATRejected, event.TypeUATAccepted:
			got = append(got, ty)
		}
	}
	want := []event.Type{event.TypeUATRequested, event.TypeUATRejected, event.TypeUATAccepted}
	if len(got) != len(want) {
		t.Fatalf("uat events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("uat events = %v, want %v", got, want)
		}
	}
	ready, err := env.Engine.StageReady(env.Ctx, p.ID, stage.Testing)
	if err != nil {
		t.Fatal(err)
	}
	if ready {
		t.Fatal("testing record ready with four sign-offs pending")
	}
	all := `{"uat_requested":true,"uat_signoff":"approved","service_signoff":"approved","security_signoff":"approved","performance_signoff":"approved","regression_signoff":"approved"}`
	if _, err := env.Engine.UpdateStageRecord(env.Ctx, p.ID, stage.Testing, all, "a"); err != nil {
		t.Fatal(err)
	}
	ready, _ = env.Engine.StageReady(env.Ctx, p.ID, stage.Testing)
	if !ready {
		t.Fatal("testing record not ready with all five sign-offs approved")
	}
}

func TestUpdateStageRecordRejectsBadSignoffValue(t *testing.T) {
	env := newTestEnv(t)
	p, _ := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{Title: "bad", ActorID: "a"})
	p, _ = env.Engine.Advance(env.Ctx, p.ID, "a")
	if _, err := env.Engine.UpdateStageRecord(env.Ctx, p.ID, stage.Feasibility, `{"decision":"maybe"}`, "a"); err == nil {
		t.Fatal("expected validation error for bad sign-off value")
	}
}

func TestBuildStageHasNoRecord(t *testing.T) {
	env := newTestEnv(t)
	p, _ := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{Title: "builds", ActorID: "a"})
	for p.Status != stage.Build {
		p, _ = env.Engine.Advance(env.Ctx, p.ID, "a")
	}
	if _, err := env.Engine.UpdateStageRecord(env.Ctx, p.ID, stage.Build, `{}`, "a"); err == nil {
		t.Fatal("expected error: build has no record")
	}
	// the development record carries build state and stays editable here
	if _, err := env.Engine.UpdateStageRecord(env.Ctx, p.ID, stage.Development, `{"build_reference":"v1.4.0"}`, "a"); err != nil {
		t.Fatalf("update development at build stage: %v", err)
	}
}

func TestProgressClassification(t *testing.T) {
	env := newTestEnv(t)
	p, _ := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{Title: "prog", ActorID: "a"})
	for p.Status != stage.Development {
		p, _ = env.Engine.Advance(env.Ctx, p.ID, "a")
	}
	rows, err := env.Engine.Progress(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	byStage := map[stage.Stage]stage.Progress{}
	for _, row := range rows {
		byStage[row.Stage] = row.Progress
	}
	if byStage[stage.Ideation] != stage.ProgressCompleted {
		t.Errorf("ideation = %s", byStage[stage.Ideation])
	}
	if byStage[stage.Development] != stage.ProgressCurrent {
		t.Errorf("development = %s", byStage[stage.Development])
	}
	if byStage[stage.Testing] != stage.ProgressNotReached {
		t.Errorf("testing = %s", byStage[stage.Testing])
	}

	p, _ = env.Engine.Cancel(env.Ctx, p.ID, "a")
	rows, _ = env.Engine.Progress(env.Ctx, p.ID)
	for _, row := range rows {
		if row.Progress != stage.ProgressCancelled {
			t.Fatalf("%s = %s after cancel", row.Stage, row.Progress)
		}
	}
}

func TestUpdateProjectOwnerMustExist(t *testing.T) {
	env := newTestEnv(t)
	p, _ := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{Title: "owned", ActorID: "a"})
	ghost := "nobody"
	if _, err := env.Engine.UpdateProject(env.Ctx, engine.UpdateProjectOptions{ID: p.ID, OwnerID: &ghost, ActorID: "a"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("set missing owner = %v, want ErrNotFound", err)
	}
	if err := env.Engine.Repo.InsertUser(env.Ctx, domain.User{ID: "u1", Name: "Dana", Email: "dana@example.com", CreatedAt: "2026-03-01T12:00:00Z"}); err != nil {
		t.Fatal(err)
	}
	owner := "u1"
	p, err := env.Engine.UpdateProject(env.Ctx, engine.UpdateProjectOptions{ID: p.ID, OwnerID: &owner, ActorID: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if p.OwnerID == nil || *p.OwnerID != "u1" {
		t.Fatalf("owner = %v", p.OwnerID)
	}
}

func TestAddNoteOnProjectAppendsHistory(t *testing.T) {
	env := newTestEnv(t)
	p, _ := env.Engine.CreateProject(env.Ctx, engine.CreateProjectOptions{Title: "annotated", ActorID: "a"})
	n, err := env.Engine.AddNote(env.Ctx, "project", p.ID, "kickoff went well", "a")
	if err != nil {
		t.Fatal(err)
	}
	notes, err := env.Engine.Repo.ListNotes(env.Ctx, "project", p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || notes[0].ID != n.ID {
		t.Fatalf("notes = %+v", notes)
	}
	hist, _ := env.Engine.Repo.ListHistory(env.Ctx, p.ID, 10)
	if len(hist) != 2 {
		t.Fatalf("got %d history entries, want 2", len(hist))
	}
	if _, err := env.Engine.AddNote(env.Ctx, "project", "missing", "x", "a"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("note on missing project = %v", err)
	}
}
