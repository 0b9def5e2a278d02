package notify

import (
	"context"

	"go.uber.org/zap"
)

// Recipient is an email-bearing delivery target. Identity is the user id;
// the resolver deduplicates on it.
type Recipient struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// Message is the unit handed to the mail collaborator: who to reach, which
// template to render, and the payload for rendering. Rendering itself is
// the collaborator's concern.
type Message struct {
	To        []Recipient    `json:"to"`
	Mailable  string         `json:"mailable"`
	ProjectID string         `json:"project_id"`
	EventType string         `json:"event_type"`
	Context   map[string]any `json:"context,omitempty"`
}

// Mailer delivers messages. Implementations own rendering and transport.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer records deliveries in the log instead of sending anything.
// It is the default when no real mail transport is configured.
type LogMailer struct {
	Log *zap.Logger
}

func (m LogMailer) Send(_ context.Context, msg Message) error {
	log := m.Log
	if log == nil {
		log = zap.NewNop()
	}
	emails := make([]string, 0, len(msg.To))
	for _, r := range msg.To {
		emails = append(emails, r.Email)
	}
	log.Info("mail delivered",
		zap.String("mailable", msg.Mailable),
		zap.String("event_type", msg.EventType),
		zap.String("project_id", msg.ProjectID),
		zap.Strings("to", emails),
	)
	return nil
}
