package stagegatesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Stagegate HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Status    string  `json:"status"`
	Deadline  *string `json:"deadline,omitempty"`
	OwnerID   *string `json:"owner_id,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// StageRecord is one stage's form record with its readiness flag.
type StageRecord struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"project_id"`
	RecordType string          `json:"record_type"`
	Fields     json.RawMessage `json:"fields"`
	Ready      bool            `json:"ready"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

// HistoryEntry is one audit trail row.
type HistoryEntry struct {
	ID          int64   `json:"id"`
	ProjectID   string  `json:"project_id"`
	ActorID     *string `json:"actor_id,omitempty"`
	Description string  `json:"description"`
	CreatedAt   string  `json:"created_at"`
}

// StageProgress is one row of a project's display progress.
type StageProgress struct {
	Stage    string `json:"stage"`
	Label    string `json:"label"`
	Color    string `json:"color"`
	Progress string `json:"progress"`
}

// Progress is a project's per-stage progress.
type Progress struct {
	ProjectID string          `json:"project_id"`
	Status    string          `json:"status"`
	Stages    []StageProgress `json:"stages"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project in the initial stage.
func (c *Client) CreateProject(ctx context.Context, title string, ownerID string) (Project, error) {
	body := map[string]any{"title": title}
	if ownerID != "" {
		body["owner_id"] = ownerID
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "v0/projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListProjects lists projects, optionally filtered by status.
func (c *Client) ListProjects(ctx context.Context, status string) ([]Project, error) {
	endpoint := "v0/projects"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Project
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Advance moves a project to the next stage.
func (c *Client) Advance(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects/"+url.PathEscape(id)+"/advance", nil, &resp)
	return resp, err
}

// Cancel cancels a project.
func (c *Client) Cancel(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects/"+url.PathEscape(id)+"/cancel", nil, &resp)
	return resp, err
}

// GetProgress returns per-stage progress for a project.
func (c *Client) GetProgress(ctx context.Context, id string) (Progress, error) {
	var resp Progress
	err := c.do(ctx, http.MethodGet, "v0/projects/"+url.PathEscape(id)+"/progress", nil, &resp)
	return resp, err
}

// ListStageRecords returns all of a project's stage records.
func (c *Client) ListStageRecords(ctx context.Context, id string) ([]StageRecord, error) {
	var resp []StageRecord
	err := c.do(ctx, http.MethodGet, "v0/projects/"+url.PathEscape(id)+"/stages", nil, &resp)
	return resp, err
}

// GetStageRecord fetches one stage record.
func (c *Client) GetStageRecord(ctx context.Context, id, stage string) (StageRecord, error) {
	var resp StageRecord
	endpoint := fmt.Sprintf("v0/projects/%s/stages/%s", url.PathEscape(id), url.PathEscape(stage))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UpdateStageRecord replaces a stage record's fields.
func (c *Client) UpdateStageRecord(ctx context.Context, id, stage string, fields any) (StageRecord, error) {
	var resp StageRecord
	endpoint := fmt.Sprintf("v0/projects/%s/stages/%s", url.PathEscape(id), url.PathEscape(stage))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"fields": fields}, &resp)
	return resp, err
}

// History returns a project's history, newest first.
func (c *Client) History(ctx context.Context, id string, limit int) ([]HistoryEntry, error) {
	endpoint := "v0/projects/" + url.PathEscape(id) + "/history"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []HistoryEntry
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
