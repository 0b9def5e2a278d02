package stage_test

import (
	"testing"

	"stagegate/internal/stage"
)

func TestNextCoversOrderedChain(t *testing.T) {
	ordered := stage.Ordered()
	for i, s := range ordered[:len(ordered)-1] {
		next, ok := stage.Next(s)
		if !ok {
			t.Fatalf("Next(%s) reported no successor", s)
		}
		if next != ordered[i+1] {
			t.Fatalf("Next(%s) = %s, want %s", s, next, ordered[i+1])
		}
	}
	if _, ok := stage.Next(stage.Deployed); ok {
		t.Fatal("Deployed should be the last ordered stage")
	}
	if _, ok := stage.Next(stage.Completed); ok {
		t.Fatal("Completed has no successor")
	}
}

func TestRecordTypesSkipBuild(t *testing.T) {
	if _, ok := stage.RecordTypeFor(stage.Build); ok {
		t.Fatal("build should not own a record")
	}
	rts := stage.RecordTypes()
	if len(rts) != len(stage.Ordered())-1 {
		t.Fatalf("got %d record types, want %d", len(rts), len(stage.Ordered())-1)
	}
	for _, s := range stage.Ordered() {
		if s == stage.Build {
			continue
		}
		if _, ok := stage.RecordTypeFor(s); !ok {
			t.Errorf("no record type for %s", s)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range stage.Ordered() {
		if stage.IsTerminal(s) {
			t.Errorf("%s reported terminal", s)
		}
	}
	if !stage.IsTerminal(stage.Completed) || !stage.IsTerminal(stage.Cancelled) {
		t.Fatal("Completed and Cancelled must be terminal")
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	if _, err := stage.Parse("shipping"); err == nil {
		t.Fatal("expected error for unknown stage")
	}
	s, err := stage.Parse("detailed_design")
	if err != nil || s != stage.DetailedDesign {
		t.Fatalf("Parse(detailed_design) = %s, %v", s, err)
	}
}

func TestRelativeProgress(t *testing.T) {
	cases := []struct {
		s, rel stage.Stage
		want   stage.Progress
	}{
		{stage.Ideation, stage.Development, stage.ProgressCompleted},
		{stage.Development, stage.Development, stage.ProgressCurrent},
		{stage.Testing, stage.Development, stage.ProgressNotReached},
		{stage.Deployed, stage.Completed, stage.ProgressCompleted},
		{stage.Testing, stage.Cancelled, stage.ProgressCancelled},
	}
	for _, c := range cases {
		if got := stage.RelativeProgress(c.s, c.rel); got != c.want {
			t.Errorf("RelativeProgress(%s, %s) = %s, want %s", c.s, c.rel, got, c.want)
		}
	}
}
