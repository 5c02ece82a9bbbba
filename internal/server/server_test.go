package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"reqline/internal/config"
	"reqline/internal/db"
	"reqline/internal/domain"
	"reqline/internal/engine"
	"reqline/internal/migrate"
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
	cfg := config.Default("reqline")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	seedUsers(t, e)
	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: AuthConfig{AllowLegacyActorHeader: true}})
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

func seedUsers(t *testing.T, e engine.Engine) {
	t.Helper()
	ctx := context.Background()
	users := []engine.UserCreateOptions{
		{ID: "root", Email: "root@example.com", FirstName: "Root", Role: domain.RoleAdmin},
		{ID: "alice", Email: "alice@example.com", FirstName: "Alice", Role: domain.RoleUsuario},
		{ID: "dante", Email: "dante@example.com", FirstName: "Dante", Role: domain.RoleDisenador},
	}
	for _, u := range users {
		u.ActorID = "root"
		if _, err := e.CreateUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
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

func TestCreateRequestAssignsOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/requests", map[string]any{
		"area":  "Comunicaciones",
		"type":  "banner",
		"title": "Launch banner",
	}, asActor("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create request status %d: %s", res.StatusCode, string(data))
	}
	var created CreateRequestResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.Queued {
		t.Fatalf("expected auto-assignment, got queued: %s", string(data))
	}
	if created.AssignedTo == nil || created.AssignedTo.ID != "dante" {
		t.Fatalf("assigned_to = %+v", created.AssignedTo)
	}
	if created.Request.Status != domain.StatusInProcess {
		t.Fatalf("status = %s", created.Request.Status)
	}
}

func TestUnauthenticatedIsRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/queue/my", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	// health stays open
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestQueuePositionVisibility(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	// no executor capacity for this type, so the ticket queues
	if _, err := srv.Engine.SetExecutorAvailability(context.Background(), "dante", false, "busy", nil, "root"); err != nil {
		t.Fatal(err)
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/requests", map[string]any{
		"area":  "Comunicaciones",
		"type":  "banner",
		"title": "Queued banner",
	}, asActor("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var created CreateRequestResponse
	_ = json.Unmarshal(data, &created)
	if !created.Queued {
		t.Fatalf("expected queued ticket: %s", string(data))
	}
	id := created.Request.ID

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/queue/ticket/"+id, nil, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("position: %d %s", res.StatusCode, string(data))
	}
	var pos struct {
		InQueue bool                `json:"in_queue"`
		Entry   *QueueEntryResponse `json:"entry"`
	}
	if err := json.Unmarshal(data, &pos); err != nil {
		t.Fatal(err)
	}
	if !pos.InQueue || pos.Entry == nil || pos.Entry.Position != 1 {
		t.Fatalf("entry = %s", string(data))
	}

	// a stranger gets 403, not a leak
	stranger, _ := srv.Engine.CreateUser(context.Background(), engine.UserCreateOptions{
		ID: "mallory", Email: "mallory@example.com", FirstName: "Mallory", ActorID: "root",
	})
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/queue/ticket/"+id, nil, asActor(stranger.ID))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
	// admin sees everything
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/queue/ticket/"+id, nil, asActor("root"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin position status %d", res.StatusCode)
	}
}

func TestScopedQueueIsAdminOnly(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/queue/scope", nil, asActor("alice"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/queue/scope?department=Comunicaciones", nil, asActor("root"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin scope status %d: %s", res.StatusCode, string(data))
	}
	var view ScopedQueueResponse
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatal(err)
	}
	if view.Page != 1 || view.Limit != 20 {
		t.Fatalf("defaults not applied: %+v", view)
	}
}

func TestClaimConflictOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/requests", map[string]any{
		"area":  "Comunicaciones",
		"type":  "banner",
		"title": "One slot",
	}, asActor("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var created CreateRequestResponse
	_ = json.Unmarshal(data, &created)

	// already auto-assigned, claim must conflict
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/requests/"+created.Request.ID+"/claim", map[string]any{}, asActor("dante"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
}

func TestStatusTransitionOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/requests", map[string]any{
		"area":  "Comunicaciones",
		"type":  "banner",
		"title": "Review me",
	}, asActor("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var created CreateRequestResponse
	_ = json.Unmarshal(data, &created)
	id := created.Request.ID

	// requester cannot advance someone else's work
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/requests/"+id+"/status", map[string]any{"status": "review"}, asActor("alice"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
	// assignee advances
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/requests/"+id+"/status", map[string]any{"status": "review"}, asActor("dante"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("to review: %d %s", res.StatusCode, string(data))
	}
	// skipping ahead is a validation failure
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/requests/"+id+"/status", map[string]any{"status": "in-process"}, asActor("root"))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
}

func TestCommentFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/requests", map[string]any{
		"area":  "Comunicaciones",
		"type":  "banner",
		"title": "Comment on me",
	}, asActor("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", res.StatusCode, string(data))
	}
	var created CreateRequestResponse
	_ = json.Unmarshal(data, &created)
	id := created.Request.ID

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/requests/"+id+"/comments", map[string]any{"text": "use the new logo"}, asActor("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("comment: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/requests/"+id+"/comments", nil, asActor("dante"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list comments: %d %s", res.StatusCode, string(data))
	}
	var comments []CommentResponse
	if err := json.Unmarshal(data, &comments); err != nil {
		t.Fatal(err)
	}
	if len(comments) != 1 || comments[0].AuthorName != "Alice" {
		t.Fatalf("comments = %s", string(data))
	}
}

func TestDevLoginAndMe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	// rebuild handler with a secret so dev login works
	handler, err := New(Config{Engine: srv.Engine, BasePath: "/v1", Auth: AuthConfig{JWTSecret: "dev-secret"}})
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	httpSrv := &http.Server{Handler: handler}
	go httpSrv.Serve(ln)
	defer func() {
		httpSrv.Shutdown(context.Background())
		ln.Close()
	}()
	base := "http://" + ln.Addr().String()

	res, data := doJSON(t, client, http.MethodPost, base+"/v1/auth/dev/login", map[string]any{"actor_id": "alice"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("token missing: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/v1/me", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatal(err)
	}
	if who.ActorID != "alice" || who.Role != domain.RoleUsuario {
		t.Fatalf("whoami = %s", string(data))
	}
}
