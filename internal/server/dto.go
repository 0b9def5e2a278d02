package server

import (
	"encoding/json"

	"stagegate/internal/domain"
	"stagegate/internal/engine"
)

type CreateProjectRequest struct {
	ID       string  `json:"id,omitempty"`
	Title    string  `json:"title"`
	Deadline *string `json:"deadline,omitempty"`
	OwnerID  string  `json:"owner_id,omitempty"`
}

type UpdateProjectRequest struct {
	Title    *string `json:"title,omitempty"`
	Deadline *string `json:"deadline,omitempty"`
	OwnerID  *string `json:"owner_id,omitempty"`
}

type ProjectResponse struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Status    string  `json:"status"`
	Deadline  *string `json:"deadline,omitempty"`
	OwnerID   *string `json:"owner_id,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:        p.ID,
		Title:     p.Title,
		Status:    string(p.Status),
		Deadline:  p.Deadline,
		OwnerID:   p.OwnerID,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectResponse(p))
	}
	return out
}

type StageRecordResponse struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"project_id"`
	RecordType string          `json:"record_type"`
	Fields     json.RawMessage `json:"fields"`
	Ready      bool            `json:"ready"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

func stageRecordResponse(rec domain.StageRecord) (StageRecordResponse, error) {
	fields, err := domain.DecodeFields(rec)
	if err != nil {
		return StageRecordResponse{}, err
	}
	raw := json.RawMessage(rec.FieldsJSON)
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	return StageRecordResponse{
		ID:         rec.ID,
		ProjectID:  rec.ProjectID,
		RecordType: string(rec.RecordType),
		Fields:     raw,
		Ready:      fields.Ready(),
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}, nil
}

type HistoryEntryResponse struct {
	ID          int64   `json:"id"`
	ProjectID   string  `json:"project_id"`
	ActorID     *string `json:"actor_id,omitempty"`
	Description string  `json:"description"`
	CreatedAt   string  `json:"created_at"`
}

func mapHistory(items []domain.HistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(items))
	for _, h := range items {
		out = append(out, HistoryEntryResponse{
			ID:          h.ID,
			ProjectID:   h.ProjectID,
			ActorID:     h.ActorID,
			Description: h.Description,
			CreatedAt:   h.CreatedAt,
		})
	}
	return out
}

type ProgressResponse struct {
	ProjectID string                 `json:"project_id"`
	Status    string                 `json:"status"`
	Stages    []engine.StageProgress `json:"stages"`
}

type CreateNoteRequest struct {
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	Body       string `json:"body"`
}

type NoteResponse struct {
	ID         string  `json:"id"`
	EntityKind string  `json:"entity_kind"`
	EntityID   string  `json:"entity_id"`
	Body       string  `json:"body"`
	AuthorID   *string `json:"author_id,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

func noteResponse(n domain.Note) NoteResponse {
	return NoteResponse{
		ID:         n.ID,
		EntityKind: n.EntityKind,
		EntityID:   n.EntityID,
		Body:       n.Body,
		AuthorID:   n.AuthorID,
		CreatedAt:  n.CreatedAt,
	}
}

func mapNotes(items []domain.Note) []NoteResponse {
	out := make([]NoteResponse, 0, len(items))
	for _, n := range items {
		out = append(out, noteResponse(n))
	}
	return out
}

type CreateRuleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	EventType   string   `json:"event_type"`
	Stage       *string  `json:"stage,omitempty"`
	RoleIDs     []string `json:"role_ids,omitempty"`
	UserIDs     []string `json:"user_ids,omitempty"`
}

type UpdateRuleRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Stage       *string  `json:"stage,omitempty"`
	RoleIDs     []string `json:"role_ids,omitempty"`
	UserIDs     []string `json:"user_ids,omitempty"`
	Active      *bool    `json:"active,omitempty"`
}

type RuleResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	EventType   string   `json:"event_type"`
	Stage       *string  `json:"stage,omitempty"`
	RoleIDs     []string `json:"role_ids,omitempty"`
	UserIDs     []string `json:"user_ids,omitempty"`
	Active      bool     `json:"active"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

func ruleResponse(r domain.NotificationRule) RuleResponse {
	return RuleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		EventType:   r.EventType,
		Stage:       r.Stage,
		RoleIDs:     r.RoleIDs,
		UserIDs:     r.UserIDs,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func mapRules(items []domain.NotificationRule) []RuleResponse {
	out := make([]RuleResponse, 0, len(items))
	for _, r := range items {
		out = append(out, ruleResponse(r))
	}
	return out
}

type CreateUserRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type UserResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}
}

func mapUsers(items []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(items))
	for _, u := range items {
		out = append(out, userResponse(u))
	}
	return out
}

type CreateRoleRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type RoleResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func mapRoles(items []domain.Role) []RoleResponse {
	out := make([]RoleResponse, 0, len(items))
	for _, r := range items {
		out = append(out, RoleResponse{ID: r.ID, Name: r.Name, Description: r.Description})
	}
	return out
}

type SkillResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func mapSkills(items []domain.Skill) []SkillResponse {
	out := make([]SkillResponse, 0, len(items))
	for _, s := range items {
		out = append(out, SkillResponse{ID: s.ID, Name: s.Name})
	}
	return out
}

type FailedNotificationResponse struct {
	ID        int64  `json:"id"`
	ProjectID string `json:"project_id"`
	EventType string `json:"event_type"`
	Reason    string `json:"reason"`
	Attempts  int    `json:"attempts"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func mapFailedNotifications(items []domain.FailedNotification) []FailedNotificationResponse {
	out := make([]FailedNotificationResponse, 0, len(items))
	for _, f := range items {
		out = append(out, FailedNotificationResponse{
			ID:        f.ID,
			ProjectID: f.ProjectID,
			EventType: f.EventType,
			Reason:    f.Reason,
			Attempts:  f.Attempts,
			CreatedAt: f.CreatedAt,
		})
	}
	return out
}
