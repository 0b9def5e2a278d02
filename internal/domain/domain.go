package domain

import "stagegate/internal/stage"

type Project struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Status    stage.Stage `json:"status"`
	Deadline  *string     `json:"deadline,omitempty" format:"date-time"`
	OwnerID   *string     `json:"owner_id,omitempty"`
	CreatedAt string      `json:"created_at" format:"date-time"`
	UpdatedAt string      `json:"updated_at" format:"date-time"`
}

// StageRecord is the persisted envelope for one stage's form data. Exactly
// one record per record type exists per project; FieldsJSON holds the typed
// fields for the record's stage.
type StageRecord struct {
	ID         string           `json:"id"`
	ProjectID  string           `json:"project_id"`
	RecordType stage.RecordType `json:"record_type"`
	FieldsJSON string           `json:"fields_json"`
	CreatedAt  string           `json:"created_at" format:"date-time"`
	UpdatedAt  string           `json:"updated_at" format:"date-time"`
}

// HistoryEntry is one line of a project's append-only audit trail. ActorID
// is nil for system-generated entries; the "System" label is applied at
// display time, never stored.
type HistoryEntry struct {
	ID          int64   `json:"id"`
	ProjectID   string  `json:"project_id"`
	ActorID     *string `json:"actor_id,omitempty"`
	Description string  `json:"description"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

// NotificationRule is a persisted, admin-editable routing rule. Its
// recipient selector holds role ids or user ids, never both.
type NotificationRule struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	EventType   string   `json:"event_type"`
	Stage       *string  `json:"stage,omitempty"`
	RoleIDs     []string `json:"role_ids,omitempty"`
	UserIDs     []string `json:"user_ids,omitempty"`
	Active      bool     `json:"active"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Skill struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Note attaches free text to any entity identified by a (kind, id) pair.
type Note struct {
	ID         string  `json:"id"`
	EntityKind string  `json:"entity_kind"`
	EntityID   string  `json:"entity_id"`
	Body       string  `json:"body"`
	AuthorID   *string `json:"author_id,omitempty"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

// FailedNotification is a dead-lettered notification job kept for manual
// inspection after retries are exhausted.
type FailedNotification struct {
	ID        int64  `json:"id"`
	ProjectID string `json:"project_id"`
	EventType string `json:"event_type"`
	Reason    string `json:"reason"`
	Attempts  int    `json:"attempts"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
