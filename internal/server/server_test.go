package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"testing"
	"time"

	"taskledger/internal/db"
	"taskledger/internal/domain"
	"taskledger/internal/engine"
	"taskledger/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn)
	now := time.Now().UTC().Format(time.RFC3339)
	seed := []domain.User{
		{ID: "admin", Email: "admin@test.local", Role: domain.RoleAdmin},
		{ID: "alice", Email: "alice@test.local", Role: domain.RoleCustomer},
		{ID: "bob", Email: "bob@test.local", Role: domain.RoleCustomer},
	}
	for _, u := range seed {
		u.Active = true
		u.CreatedAt = now
		u.UpdatedAt = now
		if err := e.Repo.InsertUser(context.Background(), u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:        "test-secret",
			AllowActorHeader: true,
			DevLogin:         true,
			Logger:           log.New(io.Discard, "", 0),
		},
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
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
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

func asActor(id string) map[string]string {
	return map[string]string{"X-Actor-Id": id}
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error
}

func TestTaskLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createRes, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":    "Ship feature",
		"priority": "HIGH",
		"tags":     []string{"backend"},
	}, asActor("admin"))
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", createRes.StatusCode, string(data))
	}
	var created TaskResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if created.Status != "TODO" || created.Priority != "HIGH" {
		t.Fatalf("unexpected task: %+v", created)
	}
	taskID := created.ID

	assignRes, assignBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+taskID+"/assign", map[string]any{
		"assignee_id": "bob",
	}, asActor("admin"))
	if assignRes.StatusCode != http.StatusOK {
		t.Fatalf("assign status %d: %s", assignRes.StatusCode, string(assignBody))
	}

	statusRes, statusBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+taskID+"/status", map[string]any{
		"status": "IN_PROGRESS",
	}, asActor("bob"))
	if statusRes.StatusCode != http.StatusOK {
		t.Fatalf("status update %d: %s", statusRes.StatusCode, string(statusBody))
	}

	commentRes, commentBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+taskID+"/comments", map[string]any{
		"content": "halfway there",
	}, asActor("bob"))
	if commentRes.StatusCode != http.StatusCreated {
		t.Fatalf("comment status %d: %s", commentRes.StatusCode, string(commentBody))
	}

	detailRes, detailBody := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/"+taskID, nil, asActor("bob"))
	if detailRes.StatusCode != http.StatusOK {
		t.Fatalf("detail status %d: %s", detailRes.StatusCode, string(detailBody))
	}
	var detail TaskDetailResponse
	if err := json.Unmarshal(detailBody, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if detail.Task.Status != "IN_PROGRESS" {
		t.Fatalf("expected IN_PROGRESS, got %s", detail.Task.Status)
	}
	if len(detail.Comments) != 1 || detail.Comments[0].Content != "halfway there" {
		t.Fatalf("comments not reflected: %+v", detail.Comments)
	}
	// CREATED, ASSIGNED, STATUS_CHANGED, COMMENT_ADDED
	if len(detail.Logs) != 4 {
		t.Fatalf("expected 4 logs, got %d: %+v", len(detail.Logs), detail.Logs)
	}

	delRes, delBody := doJSON(t, client, http.MethodDelete, srv.URL+"/v1/tasks/"+taskID, nil, asActor("admin"))
	if delRes.StatusCode >= 300 {
		t.Fatalf("delete status %d: %s", delRes.StatusCode, string(delBody))
	}

	// Mutations on a deleted task report not_found.
	againRes, againBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+taskID+"/status", map[string]any{
		"status": "DONE",
	}, asActor("bob"))
	if againRes.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on deleted task, got %d: %s", againRes.StatusCode, string(againBody))
	}
	if code := decodeError(t, againBody).Code; code != "not_found" {
		t.Fatalf("expected not_found code, got %s", code)
	}
}

func TestSubTaskEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title": "Parent", "assignee_id": "alice",
	}, asActor("admin"))
	var parent TaskResponse
	if err := json.Unmarshal(data, &parent); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}

	createRes, stBody := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+parent.ID+"/subtasks", map[string]any{
		"title": "write tests",
	}, asActor("alice"))
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create subtask status %d: %s", createRes.StatusCode, string(stBody))
	}
	var st SubTaskResponse
	if err := json.Unmarshal(stBody, &st); err != nil {
		t.Fatalf("unmarshal subtask: %v", err)
	}

	patchRes, patchBody := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/tasks/"+parent.ID+"/subtasks/"+st.ID, map[string]any{
		"done": true,
	}, asActor("alice"))
	if patchRes.StatusCode != http.StatusOK {
		t.Fatalf("patch subtask status %d: %s", patchRes.StatusCode, string(patchBody))
	}
	var patched SubTaskResponse
	_ = json.Unmarshal(patchBody, &patched)
	if !patched.Done {
		t.Fatalf("subtask should be done: %+v", patched)
	}

	// Subtask addressed under the wrong parent task is invisible.
	_, otherData := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title": "Other",
	}, asActor("admin"))
	var other TaskResponse
	_ = json.Unmarshal(otherData, &other)
	wrongRes, wrongBody := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/tasks/"+other.ID+"/subtasks/"+st.ID, map[string]any{
		"done": false,
	}, asActor("admin"))
	if wrongRes.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for cross-task subtask, got %d: %s", wrongRes.StatusCode, string(wrongBody))
	}
}

func TestAccessControlCodes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title": "nope",
	}, asActor("alice"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("customer create should be 403, got %d: %s", res.StatusCode, string(data))
	}
	if code := decodeError(t, data).Code; code != "forbidden" {
		t.Fatalf("expected forbidden code, got %s", code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title": "secret",
	}, asActor("admin"))
	var created TaskResponse
	_ = json.Unmarshal(data, &created)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/"+created.ID, nil, asActor("bob"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger detail should be 403, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/does-not-exist", nil, asActor("admin"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing task should be 404, got %d: %s", res.StatusCode, string(data))
	}

	// Unknown actors surface as not_found before any policy checks.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title": "ghost",
	}, asActor("nobody"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown actor should be 404, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"description": "no title",
	}, asActor("admin"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing title should be 400, got %d: %s", res.StatusCode, string(data))
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	if code := decodeError(t, data).Code; code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %s", code)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token should be 401, got %d: %s", res.StatusCode, string(data))
	}

	// Health stays open.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be open, got %d: %s", res.StatusCode, string(data))
	}
}

func TestDevLoginAndJWT(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"user_id": "admin",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	if login.Token == "" {
		t.Fatal("empty token")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me UserResponse
	_ = json.Unmarshal(data, &me)
	if me.ID != "admin" {
		t.Fatalf("expected admin, got %+v", me)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/apikeys", map[string]any{
		"user_id": "bob",
		"name":    "ci",
	}, asActor("admin"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.Key == "" {
		t.Fatal("raw key must be returned on create")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"X-Api-Key": key.Key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key status %d: %s", res.StatusCode, string(data))
	}
	var me UserResponse
	_ = json.Unmarshal(data, &me)
	if me.ID != "bob" {
		t.Fatalf("expected bob, got %+v", me)
	}

	// Listing never exposes the raw key.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/apikeys?user_id=bob", nil, asActor("admin"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list keys status %d: %s", res.StatusCode, string(data))
	}
	var keys []APIKeyResponse
	if err := json.Unmarshal(data, &keys); err != nil {
		t.Fatalf("unmarshal keys: %v", err)
	}
	if len(keys) != 1 || keys[0].Key != "" {
		t.Fatalf("unexpected key listing: %+v", keys)
	}

	// Customers cannot mint keys.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/apikeys", map[string]any{
		"user_id": "bob",
	}, asActor("bob"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("customer key mint should be 403, got %d: %s", res.StatusCode, string(data))
	}
}

func TestListTasksPaginationAndVisibility(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	var ids []string
	for _, title := range []string{"one", "two", "three"} {
		_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
			"title": title,
		}, asActor("admin"))
		var created TaskResponse
		if err := json.Unmarshal(data, &created); err != nil {
			t.Fatalf("unmarshal task: %v", err)
		}
		ids = append(ids, created.ID)
	}
	_, _ = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+ids[0]+"/assign", map[string]any{
		"assignee_id": "alice",
	}, asActor("admin"))

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks?limit=2", nil, asActor("admin"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedTasks
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	if page.NextCursor == "" {
		t.Fatal("expected a next_cursor for the remaining task")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks?limit=2&cursor="+page.NextCursor, nil, asActor("admin"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second page status %d: %s", res.StatusCode, string(data))
	}
	var second paginatedTasks
	_ = json.Unmarshal(data, &second)
	if len(second.Items) != 1 || second.NextCursor != "" {
		t.Fatalf("unexpected second page: %+v", second)
	}

	// Customers only see tasks they created or are assigned to.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks", nil, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("customer list status %d: %s", res.StatusCode, string(data))
	}
	var mine paginatedTasks
	_ = json.Unmarshal(data, &mine)
	if len(mine.Items) != 1 || mine.Items[0].ID != ids[0] {
		t.Fatalf("customer should only see assigned task: %+v", mine.Items)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks?cursor=garbage", nil, asActor("admin"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad cursor should be 400, got %d: %s", res.StatusCode, string(data))
	}
}

func TestCreateUserEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/users", map[string]any{
		"email":     "carol@test.local",
		"full_name": "Carol",
		"role":      "CUSTOMER",
	}, asActor("admin"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create user status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/users", map[string]any{
		"email": "carol@test.local",
	}, asActor("admin"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate email should be 409, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/users", map[string]any{
		"email": "mallory@test.local",
	}, asActor("alice"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("customer create user should be 403, got %d: %s", res.StatusCode, string(data))
	}
}
