// Package notify maps lifecycle events to recipient sets and outbound
// messages. Two resolution mechanisms coexist behind one dispatch
// interface: a static config map and persisted, admin-editable rules.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"stagegate/internal/domain"
	"stagegate/internal/event"
	"stagegate/internal/notify/notifyconfig"
)

// ErrMissingRecipients marks a static-config entry that resolved to zero
// recipients: a configuration defect worth alerting on, never a silent
// no-op. The dynamic-rule path does not raise it.
var ErrMissingRecipients = errors.New("notification config resolved to no recipients")

// RuleSource provides active persisted rules for an event type. Satisfied
// by repo.Repo.
type RuleSource interface {
	ActiveRules(ctx context.Context, eventType string) ([]domain.NotificationRule, error)
}

// Router matches a fired event against both resolution paths and sends one
// message per match. It runs on the dispatch worker, after the triggering
// business transaction has committed.
type Router struct {
	Config   *notifyconfig.Config
	Rules    RuleSource
	Resolver Resolver
	Mailer   Mailer
	Log      *zap.Logger
}

func (r *Router) log() *zap.Logger {
	if r.Log != nil {
		return r.Log
	}
	return zap.NewNop()
}

// Route runs both resolution paths for one event. Dynamic rules with empty
// recipient sets are skipped silently; a static entry resolving empty
// returns ErrMissingRecipients. An event type absent from both sources is
// a legitimate no-op.
func (r *Router) Route(ctx context.Context, ev event.Event, project domain.Project) error {
	if err := r.routeRules(ctx, ev, project); err != nil {
		return err
	}
	return r.routeConfig(ctx, ev, project)
}

func (r *Router) routeRules(ctx context.Context, ev event.Event, project domain.Project) error {
	if r.Rules == nil {
		return nil
	}
	rules, err := r.Rules.ActiveRules(ctx, string(ev.Type()))
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	evStage := ""
	if staged, ok := ev.(event.Staged); ok {
		evStage = string(staged.Stage())
	}
	for _, rule := range rules {
		if !rule.Matches(string(ev.Type()), evStage) {
			continue
		}
		recipients, err := r.ruleRecipients(ctx, rule)
		if err != nil {
			return fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		if len(recipients) == 0 {
			r.log().Debug("rule matched with no recipients, skipping",
				zap.String("rule", rule.Name),
				zap.String("event_type", string(ev.Type())),
			)
			continue
		}
		msg := Message{
			To:        recipients,
			Mailable:  r.mailableFor(ev),
			ProjectID: project.ID,
			EventType: string(ev.Type()),
			Context:   messageContext(ev, project),
		}
		if err := r.Mailer.Send(ctx, msg); err != nil {
			return fmt.Errorf("send for rule %s: %w", rule.Name, err)
		}
	}
	return nil
}

// ruleRecipients expands a rule's selector. Role memberships and explicit
// users are unioned, then deduplicated by email.
func (r *Router) ruleRecipients(ctx context.Context, rule domain.NotificationRule) ([]Recipient, error) {
	var users []domain.User
	for _, roleID := range rule.RoleIDs {
		members, err := r.Resolver.Dir.RoleMembersByID(ctx, roleID)
		if err != nil {
			return nil, err
		}
		users = append(users, members...)
	}
	for _, userID := range rule.UserIDs {
		u, err := r.Resolver.Dir.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	seen := map[string]bool{}
	var out []Recipient
	for _, u := range users {
		if seen[u.Email] {
			continue
		}
		seen[u.Email] = true
		out = append(out, Recipient{UserID: u.ID, Name: u.Name, Email: u.Email})
	}
	return out, nil
}

func (r *Router) routeConfig(ctx context.Context, ev event.Event, project domain.Project) error {
	entry, ok := r.Config.Lookup(string(ev.Type()))
	if !ok {
		return nil
	}
	recipients, err := r.Resolver.Resolve(ctx, ev, project, entry)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return fmt.Errorf("event %s: %w", ev.Type(), ErrMissingRecipients)
	}
	msg := Message{
		To:        recipients,
		Mailable:  entry.Mailable,
		ProjectID: project.ID,
		EventType: string(ev.Type()),
		Context:   messageContext(ev, project),
	}
	if err := r.Mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send for event %s: %w", ev.Type(), err)
	}
	return nil
}

// mailableFor picks the template for dynamic-rule deliveries: the static
// config's mailable for the event type when one exists, the event type
// itself otherwise.
func (r *Router) mailableFor(ev event.Event) string {
	if entry, ok := r.Config.Lookup(string(ev.Type())); ok {
		return entry.Mailable
	}
	return string(ev.Type())
}

func messageContext(ev event.Event, project domain.Project) map[string]any {
	c := map[string]any{
		"project_id":    project.ID,
		"project_title": project.Title,
	}
	if staged, ok := ev.(event.Staged); ok {
		c["stage"] = string(staged.Stage())
	}
	return c
}
