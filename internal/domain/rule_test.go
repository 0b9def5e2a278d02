package domain

import (
	"errors"
	"testing"
)

func TestRuleValidateRejectsBothSelectors(t *testing.T) {
	rule := NotificationRule{
		Name:      "both selectors",
		EventType: "project.created",
		RoleIDs:   []string{"r1"},
		UserIDs:   []string{"u1"},
	}
	err := rule.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("error %v does not match ErrInvalidRule", err)
	}
}

func TestRuleValidateWrapsAllFailures(t *testing.T) {
	bad := "not-a-stage"
	cases := []struct {
		name string
		rule NotificationRule
	}{
		{"missing name", NotificationRule{EventType: "project.created"}},
		{"missing event type", NotificationRule{Name: "r"}},
		{"bad stage", NotificationRule{Name: "r", EventType: "project.stage_changed", Stage: &bad}},
	}
	for _, tc := range cases {
		if err := tc.rule.Validate(); !errors.Is(err, ErrInvalidRule) {
			t.Errorf("%s: error %v does not match ErrInvalidRule", tc.name, err)
		}
	}
}

func TestRuleValidateAllowsEmptySelectors(t *testing.T) {
	rule := NotificationRule{Name: "quiet", EventType: "project.created"}
	if err := rule.Validate(); err != nil {
		t.Fatalf("empty selectors should be valid: %v", err)
	}
}
