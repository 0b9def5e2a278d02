package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"stagegate/internal/db"
	"stagegate/internal/engine"
	"stagegate/internal/migrate"
	"stagegate/internal/stage"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, nil)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testJWTSecret},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func authHeaders(t *testing.T) map[string]string {
	return map[string]string{"Authorization": "Bearer " + signToken(t, "tester")}
}

func TestHealthIsUnauthenticated(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestRequestsRequireBearerToken(t *testing.T) {
	srv := newTestServer(t)
	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{"Authorization": "Bearer not-a-token"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token status %d: %s", res.StatusCode, string(body))
	}
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	headers := authHeaders(t)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"title": "Portal refresh",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created ProjectResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if created.Status != string(stage.Ideation) {
		t.Fatalf("new project status %s", created.Status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+created.ID+"/stages", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list stages status %d: %s", res.StatusCode, string(data))
	}
	var recs []StageRecordResponse
	if err := json.Unmarshal(data, &recs); err != nil {
		t.Fatalf("unmarshal records: %v", err)
	}
	if len(recs) != len(stage.RecordTypes()) {
		t.Fatalf("got %d stage records, want %d", len(recs), len(stage.RecordTypes()))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+created.ID+"/advance", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("advance status %d: %s", res.StatusCode, string(data))
	}
	var advanced ProjectResponse
	_ = json.Unmarshal(data, &advanced)
	if advanced.Status != string(stage.Feasibility) {
		t.Fatalf("status after advance = %s", advanced.Status)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/projects/"+created.ID+"/stages/feasibility", map[string]any{
		"fields": map[string]any{"assessment": "viable", "decision": "approved"},
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch stage status %d: %s", res.StatusCode, string(data))
	}
	var patched StageRecordResponse
	_ = json.Unmarshal(data, &patched)
	if !patched.Ready {
		t.Fatalf("feasibility record not ready after approval: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+created.ID+"/history?limit=10", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var hist []HistoryEntryResponse
	_ = json.Unmarshal(data, &hist)
	if len(hist) != 3 {
		t.Fatalf("got %d history entries, want 3", len(hist))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+created.ID+"/cancel", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cancel status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+created.ID+"/advance", nil, headers)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("advance cancelled status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("error code %q", envelope.Error.Code)
	}
}

func TestStageRecordEndpointValidation(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	headers := authHeaders(t)

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{"title": "guarded"}, headers)
	var p ProjectResponse
	_ = json.Unmarshal(data, &p)

	// not yet reached
	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/projects/"+p.ID+"/stages/testing", map[string]any{
		"fields": map[string]any{"uat_requested": true},
	}, headers)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("patch future stage status %d: %s", res.StatusCode, string(data))
	}

	// bad sign-off value
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/projects/"+p.ID+"/stages/ideation", map[string]any{
		"fields": map[string]any{"submitter_signoff": "maybe"},
	}, headers)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bad sign-off status %d: %s", res.StatusCode, string(data))
	}

	// build has no record
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/stages/build", nil, headers)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("build record status %d: %s", res.StatusCode, string(data))
	}

	// unknown stage name
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/stages/shipping", nil, headers)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown stage status %d: %s", res.StatusCode, string(data))
	}
}

func TestRuleEndpointValidation(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	headers := authHeaders(t)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/rules", map[string]any{
		"name":       "both selectors",
		"event_type": "project.created",
		"role_ids":   []string{"r1"},
		"user_ids":   []string{"u1"},
	}, headers)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("rule with both selectors status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &envelope)
	if envelope.Error.Code != "invalid_rule" {
		t.Fatalf("rule with both selectors code %q: %s", envelope.Error.Code, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/rules", map[string]any{
		"name":       "stage watch",
		"event_type": "project.stage_changed",
		"stage":      "testing",
		"user_ids":   []string{"u1"},
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create rule status %d: %s", res.StatusCode, string(data))
	}
	var rule RuleResponse
	_ = json.Unmarshal(data, &rule)
	if !rule.Active {
		t.Fatal("new rule should be active")
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/rules/"+rule.ID, map[string]any{
		"active": false,
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("disable rule status %d: %s", res.StatusCode, string(data))
	}
	var updated RuleResponse
	_ = json.Unmarshal(data, &updated)
	if updated.Active {
		t.Fatal("rule still active after disable")
	}
}

func TestDirectoryEndpoints(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	headers := authHeaders(t)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/users", map[string]any{
		"id": "u1", "name": "Dana", "email": "dana@example.com",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create user status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/roles", map[string]any{
		"id": "r1", "name": "Test Manager",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create role status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/roles/r1/members/u1", nil, headers)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("add member status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/roles/r1/members", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list members status %d: %s", res.StatusCode, string(data))
	}
	var members []UserResponse
	_ = json.Unmarshal(data, &members)
	if len(members) != 1 || members[0].ID != "u1" {
		t.Fatalf("members = %+v", members)
	}
}
