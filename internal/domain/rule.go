package domain

import (
	"errors"
	"fmt"

	"stagegate/internal/stage"
)

// ErrInvalidRule marks a rule that violates its selector constraints.
// Callers match it with errors.Is to distinguish bad input from storage
// failures.
var ErrInvalidRule = errors.New("invalid rule")

// Validate enforces the recipient-selector invariant: a rule selects roles
// or users, never both. Both empty is allowed and means the rule resolves
// to zero recipients.
func (r NotificationRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if r.EventType == "" {
		return fmt.Errorf("%w: rule %s has no event type", ErrInvalidRule, r.Name)
	}
	if len(r.RoleIDs) > 0 && len(r.UserIDs) > 0 {
		return fmt.Errorf("%w: rule %s selects both roles and users", ErrInvalidRule, r.Name)
	}
	if r.Stage != nil {
		if _, err := stage.Parse(*r.Stage); err != nil {
			return fmt.Errorf("%w: rule %s: %v", ErrInvalidRule, r.Name, err)
		}
	}
	return nil
}

// Matches reports whether the rule applies to an event of the given type
// and stage. An empty stage qualifier matches any stage; evStage is empty
// for events that carry no stage.
func (r NotificationRule) Matches(eventType string, evStage string) bool {
	if !r.Active || r.EventType != eventType {
		return false
	}
	if r.Stage == nil {
		return true
	}
	return *r.Stage == evStage
}
