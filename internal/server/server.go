package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"stagegate/internal/domain"
	"stagegate/internal/engine"
	"stagegate/internal/repo"
	"stagegate/internal/stage"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"project is completed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Stagegate API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Stagegate API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerStages(group, cfg.Engine)
	registerHistory(group, cfg.Engine)
	registerNotes(group, cfg.Engine)
	registerRules(group, cfg.Engine)
	registerDirectory(group, cfg.Engine)
	registerNotifications(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, engine.ErrInvalidTransition) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, domain.ErrInvalidRule) {
		return newAPIError(http.StatusBadRequest, "invalid_rule", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "has not reached"),
		strings.Contains(lowered, "is cancelled"):
		return newAPIError(http.StatusConflict, "stage_locked", msg, nil)
	case strings.Contains(lowered, "invalid sign-off"),
		strings.Contains(lowered, "has no record"):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "empty") || strings.Contains(lowered, "unknown"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Stagegate API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, engine.CreateProjectOptions{
			ID:       input.Body.ID,
			Title:    input.Body.Title,
			Deadline: input.Body.Deadline,
			OwnerID:  input.Body.OwnerID,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Owner  string `query:"owner"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		if input.Status != "" {
			if _, err := stage.Parse(input.Status); err != nil {
				return nil, handleError(err)
			}
		}
		items, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{
			Status: input.Status,
			Owner:  input.Owner,
			Limit:  input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project details",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProject(ctx, engine.UpdateProjectOptions{
			ID:       input.ProjectID,
			Title:    input.Body.Title,
			Deadline: input.Body.Deadline,
			OwnerID:  input.Body.OwnerID,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/advance",
		Summary:     "Advance project to the next stage",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Advance(ctx, input.ProjectID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/cancel",
		Summary:     "Cancel project",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Cancel(ctx, input.ProjectID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-progress",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/progress",
		Summary:     "Per-stage progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProgressResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		rows, err := e.Progress(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProgressResponse `json:"body"`
		}{Body: ProgressResponse{ProjectID: p.ID, Status: string(p.Status), Stages: rows}}, nil
	})
}

func registerStages(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-stage-records",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stages",
		Summary:     "List stage records",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []StageRecordResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		recs, err := e.Repo.ListStageRecords(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]StageRecordResponse, 0, len(recs))
		for _, rec := range recs {
			resp, err := stageRecordResponse(rec)
			if err != nil {
				return nil, handleError(err)
			}
			out = append(out, resp)
		}
		return &struct {
			Body []StageRecordResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-stage-record",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stages/{stage}",
		Summary:     "Get stage record",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Stage     string `path:"stage"`
	}) (*struct {
		Body StageRecordResponse `json:"body"`
	}, error) {
		st, err := stage.Parse(input.Stage)
		if err != nil {
			return nil, handleError(err)
		}
		rt, ok := stage.RecordTypeFor(st)
		if !ok {
			return nil, newAPIError(http.StatusUnprocessableEntity, "validation_failed", fmt.Sprintf("stage %s has no record", st), nil)
		}
		rec, err := e.Repo.GetStageRecord(ctx, input.ProjectID, rt)
		if err != nil {
			return nil, handleError(err)
		}
		resp, err := stageRecordResponse(rec)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StageRecordResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-stage-record",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/stages/{stage}",
		Summary:     "Update stage record fields",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Stage     string `path:"stage"`
		Body      struct {
			Fields json.RawMessage `json:"fields"`
		} `json:"body"`
	}) (*struct {
		Body StageRecordResponse `json:"body"`
	}, error) {
		st, err := stage.Parse(input.Stage)
		if err != nil {
			return nil, handleError(err)
		}
		if len(input.Body.Fields) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "fields is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.UpdateStageRecord(ctx, input.ProjectID, st, string(input.Body.Fields), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		resp, err := stageRecordResponse(rec)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StageRecordResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerHistory(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "project-history",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/history",
		Summary:     "Project history, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Limit     int    `query:"limit"`
	}) (*struct {
		Body []HistoryEntryResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListHistory(ctx, input.ProjectID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []HistoryEntryResponse `json:"body"`
		}{Body: mapHistory(items)}, nil
	})
}

func registerNotes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-note",
		Method:        http.MethodPost,
		Path:          "/notes",
		Summary:       "Attach a note to an entity",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateNoteRequest `json:"body"`
	}) (*struct {
		Body NoteResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.AddNote(ctx, input.Body.EntityKind, input.Body.EntityID, input.Body.Body, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body NoteResponse `json:"body"`
		}{Body: noteResponse(n)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-notes",
		Method:      http.MethodGet,
		Path:        "/notes",
		Summary:     "List notes for an entity",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []NoteResponse `json:"body"`
	}, error) {
		if input.EntityKind == "" || input.EntityID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "entity_kind and entity_id are required", nil)
		}
		items, err := e.Repo.ListNotes(ctx, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []NoteResponse `json:"body"`
		}{Body: mapNotes(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-notes",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/notes",
		Summary:     "List a project's notes",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []NoteResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListNotes(ctx, "project", input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []NoteResponse `json:"body"`
		}{Body: mapNotes(items)}, nil
	})
}

func registerRules(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-rule",
		Method:        http.MethodPost,
		Path:          "/rules",
		Summary:       "Create notification rule",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateRuleRequest `json:"body"`
	}) (*struct {
		Body RuleResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		now := time.Now().UTC().Format(time.RFC3339)
		rule := domain.NotificationRule{
			ID:          uuid.New().String(),
			Name:        input.Body.Name,
			Description: input.Body.Description,
			EventType:   input.Body.EventType,
			Stage:       input.Body.Stage,
			RoleIDs:     input.Body.RoleIDs,
			UserIDs:     input.Body.UserIDs,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := rule.Validate(); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.InsertRule(ctx, rule); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RuleResponse `json:"body"`
		}{Body: ruleResponse(rule)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-rules",
		Method:      http.MethodGet,
		Path:        "/rules",
		Summary:     "List notification rules",
	}, func(ctx context.Context, input *struct {
		EventType string `query:"event_type"`
	}) (*struct {
		Body []RuleResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListRules(ctx, input.EventType)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []RuleResponse `json:"body"`
		}{Body: mapRules(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-rule",
		Method:      http.MethodGet,
		Path:        "/rules/{rule_id}",
		Summary:     "Get notification rule",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RuleID string `path:"rule_id"`
	}) (*struct {
		Body RuleResponse `json:"body"`
	}, error) {
		rule, err := e.Repo.GetRule(ctx, input.RuleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RuleResponse `json:"body"`
		}{Body: ruleResponse(rule)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-rule",
		Method:      http.MethodPatch,
		Path:        "/rules/{rule_id}",
		Summary:     "Update notification rule",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RuleID string            `path:"rule_id"`
		Body   UpdateRuleRequest `json:"body"`
	}) (*struct {
		Body RuleResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		rule, err := e.Repo.GetRule(ctx, input.RuleID)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.Name != nil {
			rule.Name = *input.Body.Name
		}
		if input.Body.Description != nil {
			rule.Description = *input.Body.Description
		}
		if input.Body.Stage != nil {
			if *input.Body.Stage == "" {
				rule.Stage = nil
			} else {
				rule.Stage = input.Body.Stage
			}
		}
		if input.Body.RoleIDs != nil {
			rule.RoleIDs = input.Body.RoleIDs
		}
		if input.Body.UserIDs != nil {
			rule.UserIDs = input.Body.UserIDs
		}
		if input.Body.Active != nil {
			rule.Active = *input.Body.Active
		}
		if err := rule.Validate(); err != nil {
			return nil, handleError(err)
		}
		rule.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		if err := e.Repo.UpdateRule(ctx, rule); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RuleResponse `json:"body"`
		}{Body: ruleResponse(rule)}, nil
	})
}

func registerDirectory(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" || input.Body.Email == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name and email are required", nil)
		}
		u := domain.User{
			ID:        input.Body.ID,
			Name:      input.Body.Name,
			Email:     input.Body.Email,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if u.ID == "" {
			u.ID = uuid.New().String()
		}
		if err := e.Repo.InsertUser(ctx, u); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: mapUsers(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-role",
		Method:        http.MethodPost,
		Path:          "/roles",
		Summary:       "Create role",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateRoleRequest `json:"body"`
	}) (*struct {
		Body RoleResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		role := domain.Role{ID: input.Body.ID, Name: input.Body.Name, Description: input.Body.Description}
		if role.ID == "" {
			role.ID = uuid.New().String()
		}
		if err := e.Repo.InsertRole(ctx, role); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RoleResponse `json:"body"`
		}{Body: RoleResponse{ID: role.ID, Name: role.Name, Description: role.Description}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-roles",
		Method:      http.MethodGet,
		Path:        "/roles",
		Summary:     "List roles",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []RoleResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListRoles(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []RoleResponse `json:"body"`
		}{Body: mapRoles(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "role-members",
		Method:      http.MethodGet,
		Path:        "/roles/{role_id}/members",
		Summary:     "List role members",
	}, func(ctx context.Context, input *struct {
		RoleID string `path:"role_id"`
	}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		items, err := e.Repo.RoleMembersByID(ctx, input.RoleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: mapUsers(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-role-member",
		Method:        http.MethodPut,
		Path:          "/roles/{role_id}/members/{user_id}",
		Summary:       "Add user to role",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RoleID string `path:"role_id"`
		UserID string `path:"user_id"`
	}) (*struct{}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.AddRoleMember(ctx, input.RoleID, input.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-role-member",
		Method:        http.MethodDelete,
		Path:          "/roles/{role_id}/members/{user_id}",
		Summary:       "Remove user from role",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		RoleID string `path:"role_id"`
		UserID string `path:"user_id"`
	}) (*struct{}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.RemoveRoleMember(ctx, input.RoleID, input.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-skill",
		Method:        http.MethodPost,
		Path:          "/skills",
		Summary:       "Create skill",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ID   string `json:"id,omitempty"`
			Name string `json:"name"`
		} `json:"body"`
	}) (*struct {
		Body SkillResponse `json:"body"`
	}, error) {
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		s := domain.Skill{ID: input.Body.ID, Name: input.Body.Name}
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		if err := e.Repo.InsertSkill(ctx, s); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SkillResponse `json:"body"`
		}{Body: SkillResponse{ID: s.ID, Name: s.Name}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-skills",
		Method:      http.MethodGet,
		Path:        "/skills",
		Summary:     "List skills",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []SkillResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListSkills(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []SkillResponse `json:"body"`
		}{Body: mapSkills(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "assign-skill",
		Method:        http.MethodPut,
		Path:          "/users/{user_id}/skills/{skill_id}",
		Summary:       "Assign skill to user",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		UserID  string `path:"user_id"`
		SkillID string `path:"skill_id"`
	}) (*struct{}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.AssignSkill(ctx, input.UserID, input.SkillID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "user-skills",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/skills",
		Summary:     "List a user's skills",
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body []SkillResponse `json:"body"`
	}, error) {
		items, err := e.Repo.UserSkills(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []SkillResponse `json:"body"`
		}{Body: mapSkills(items)}, nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-failed-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications/failed",
		Summary:     "List dead-lettered notifications, newest first",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body []FailedNotificationResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListFailedNotifications(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []FailedNotificationResponse `json:"body"`
		}{Body: mapFailedNotifications(items)}, nil
	})
}
