package engine_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"reqline/internal/config"
	"reqline/internal/db"
	"reqline/internal/domain"
	"reqline/internal/engine"
	"reqline/internal/migrate"
	"reqline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("test-platform")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) user(t *testing.T, id, role string) domain.User {
	t.Helper()
	u, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{
		ID:        id,
		Email:     id + "@example.com",
		FirstName: id,
		Role:      role,
		ActorID:   "test",
	})
	if err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
	return u
}

func (env testEnv) executor(t *testing.T, id, role string, capacity int) domain.User {
	t.Helper()
	u, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{
		ID:        id,
		Email:     id + "@example.com",
		FirstName: id,
		Role:      role,
		Capacity:  capacity,
		ActorID:   "test",
	})
	if err != nil {
		t.Fatalf("create executor %s: %v", id, err)
	}
	return u
}

func (env testEnv) request(t *testing.T, opts engine.RequestCreateOptions) (domain.Request, *domain.User) {
	t.Helper()
	if opts.Area == "" {
		opts.Area = "Comunicaciones"
	}
	if opts.Type == "" {
		opts.Type = "banner"
	}
	if opts.Title == "" {
		opts.Title = "test request"
	}
	if opts.ActorID == "" {
		opts.ActorID = opts.RequesterID
	}
	req, executor, err := env.Engine.CreateRequest(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req, executor
}

func TestCreateRequestAutoAssigns(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "alice", domain.RoleUsuario)
	env.executor(t, "dante", domain.RoleDisenador, 8)

	req, executor, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		RequesterID: "alice",
		Area:        "Comunicaciones",
		Type:        "banner",
		Title:       "Launch banner",
		ActorID:     "alice",
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if req.Status != domain.StatusInProcess {
		t.Fatalf("status = %s, want in-process", req.Status)
	}
	if executor == nil || executor.ID != "dante" {
		t.Fatalf("executor = %+v, want dante", executor)
	}
	if req.AssignedTo == nil || *req.AssignedTo != "dante" {
		t.Fatalf("assigned_to = %v", req.AssignedTo)
	}
	if req.AssignedAt == nil || req.QueuedAt == "" {
		t.Fatalf("timestamps missing: %+v", req)
	}
	if !strings.HasPrefix(req.RequestNumber, "REQ-20240301-") {
		t.Fatalf("request number = %s", req.RequestNumber)
	}

	stats, err := env.Engine.RefreshExecutorStats(env.Ctx, "dante", "test")
	if err != nil {
		t.Fatalf("refresh stats: %v", err)
	}
	if stats.CurrentLoad != 1 {
		t.Fatalf("current load = %d, want 1", stats.CurrentLoad)
	}
}

func TestCreateRequestQueuesWhenNoCapacity(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "alice", domain.RoleUsuario)
	env.executor(t, "pia", domain.RolePracticante, 1)

	first, executor := env.request(t, engine.RequestCreateOptions{RequesterID: "alice", Type: "redes"})
	if executor == nil || first.Status != domain.StatusInProcess {
		t.Fatalf("first request should be assigned, got %s", first.Status)
	}
	second, executor := env.request(t, engine.RequestCreateOptions{RequesterID: "alice", Type: "redes"})
	if executor != nil {
		t.Fatalf("second request should queue, assigned to %s", executor.ID)
	}
	if second.Status != domain.StatusPending || second.AssignedTo != nil {
		t.Fatalf("second = %+v", second)
	}
	if second.QueuedAt == "" {
		t.Fatal("queued_at not stamped")
	}
}

func TestCreateRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "alice", domain.RoleUsuario)

	cases := []struct {
		name string
		opts engine.RequestCreateOptions
	}{
		{"missing title", engine.RequestCreateOptions{RequesterID: "alice", Area: "Comunicaciones", Type: "banner"}},
		{"unknown area", engine.RequestCreateOptions{RequesterID: "alice", Area: "Nowhere", Type: "banner", Title: "x"}},
		{"unknown type", engine.RequestCreateOptions{RequesterID: "alice", Area: "Comunicaciones", Type: "mural", Title: "x"}},
		{"bad urgency", engine.RequestCreateOptions{RequesterID: "alice", Area: "Comunicaciones", Type: "banner", Title: "x", Urgency: "asap"}},
		{"bad preferred role", engine.RequestCreateOptions{RequesterID: "alice", Area: "Comunicaciones", Type: "banner", Title: "x", PreferredRole: "plumber"}},
		{"missing requester", engine.RequestCreateOptions{RequesterID: "ghost", Area: "Comunicaciones", Type: "banner", Title: "x"}},
	}
	for _, tc := range cases {
		if _, _, err := env.Engine.CreateRequest(env.Ctx, tc.opts); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "alice", domain.RoleUsuario)
	env.executor(t, "dante", domain.RoleDisenador, 8)

	req, _ := env.request(t, engine.RequestCreateOptions{RequesterID: "alice"})

	// in-process -> review -> completed
	req, err := env.Engine.SetRequestStatus(env.Ctx, req.ID, domain.StatusReview, "dante")
	if err != nil || req.Status != domain.StatusReview {
		t.Fatalf("to review: %v", err)
	}
	req, err = env.Engine.SetRequestStatus(env.Ctx, req.ID, domain.StatusCompleted, "dante")
	if err != nil || req.Status != domain.StatusCompleted {
		t.Fatalf("to completed: %v", err)
	}
	if req.CompletedAt == nil {
		t.Fatal("completed_at not stamped")
	}
	// terminal is terminal
	if _, err := env.Engine.SetRequestStatus(env.Ctx, req.ID, domain.StatusReview, "dante"); err == nil {
		t.Fatal("expected transition error from completed")
	}
	// skipping review is not allowed either
	other, _ := env.request(t, engine.RequestCreateOptions{RequesterID: "alice"})
	if _, err := env.Engine.SetRequestStatus(env.Ctx, other.ID, domain.StatusCompleted, "dante"); err == nil {
		t.Fatal("expected transition error in-process -> completed")
	}
}

func TestCompletionUpdatesStats(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "alice", domain.RoleUsuario)
	env.executor(t, "dante", domain.RoleDisenador, 8)

	req, _ := env.request(t, engine.RequestCreateOptions{RequesterID: "alice"})
	if _, err := env.Engine.SetRequestStatus(env.Ctx, req.ID, domain.StatusReview, "dante"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetRequestStatus(env.Ctx, req.ID, domain.StatusCompleted, "dante"); err != nil {
		t.Fatal(err)
	}
	u, err := env.Engine.Repo.GetUser(env.Ctx, "dante")
	if err != nil {
		t.Fatal(err)
	}
	if u.Executor.Stats.TotalCompleted != 1 {
		t.Fatalf("total completed = %d, want 1", u.Executor.Stats.TotalCompleted)
	}
	if u.Executor.Stats.CurrentLoad != 0 {
		t.Fatalf("current load = %d, want 0", u.Executor.Stats.CurrentLoad)
	}
	if u.Executor.Stats.OnTimeRate != 100 {
		t.Fatalf("on-time rate = %v, want 100 (no delivery date set)", u.Executor.Stats.OnTimeRate)
	}
}

func TestClaimRequest(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "alice", domain.RoleUsuario)
	env.executor(t, "pia", domain.RolePracticante, 1)
	env.request(t, engine.RequestCreateOptions{RequesterID: "alice", Type: "redes"})
	queued, executor := env.request(t, engine.RequestCreateOptions{RequesterID: "alice", Type: "redes"})
	if executor != nil {
		t.Fatal("second request should not auto-assign")
	}

	// full executor cannot claim
	if _, err := env.Engine.ClaimRequest(env.Ctx, queued.ID, "pia", "pia"); err == nil {
		t.Fatal("expected capacity error")
	}

	env.executor(t, "dante", domain.RoleDisenador, 8)
	req, err := env.Engine.ClaimRequest(env.Ctx, queued.ID, "dante", "dante")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if req.Status != domain.StatusInProcess || req.AssignedTo == nil || *req.AssignedTo != "dante" {
		t.Fatalf("claimed = %+v", req)
	}
	// claiming twice is a conflict, not a no-op
	if _, err := env.Engine.ClaimRequest(env.Ctx, req.ID, "dante", "dante"); err == nil {
		t.Fatal("expected already-assigned error")
	}
}

func TestAssignPendingRetryPass(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "alice", domain.RoleUsuario)
	env.executor(t, "pia", domain.RolePracticante, 1)

	env.request(t, engine.RequestCreateOptions{RequesterID: "alice", Type: "redes"})
	queuedNormal, _ := env.request(t, engine.RequestCreateOptions{RequesterID: "alice", Type: "redes"})
	queuedUrgent, _ := env.request(t, engine.RequestCreateOptions{RequesterID: "alice", Type: "redes", Urgency: domain.UrgencyUrgent})

	// nothing fits yet
	assigned, err := env.Engine.AssignPending(env.Ctx, "system")
	if err != nil {
		t.Fatal(err)
	}
	if len(assigned) != 0 {
		t.Fatalf("assigned %d, want 0", len(assigned))
	}

	// capacity appears: the urgent one must win the single slot
	env.executor(t, "nina", domain.RolePracticante, 1)
	assigned, err = env.Engine.AssignPending(env.Ctx, "system")
	if err != nil {
		t.Fatal(err)
	}
	if len(assigned) != 1 {
		t.Fatalf("assigned %d, want 1", len(assigned))
	}
	if assigned[0].ID != queuedUrgent.ID {
		t.Fatalf("assigned %s, want urgent %s first", assigned[0].ID, queuedUrgent.ID)
	}
	still, err := env.Engine.Repo.GetRequest(env.Ctx, queuedNormal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if still.Status != domain.StatusPending {
		t.Fatalf("normal request = %s, want still pending", still.Status)
	}
}

func TestSetExecutorAvailability(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "alice", domain.RoleUsuario)
	env.executor(t, "dante", domain.RoleDisenador, 8)

	until := "2024-03-10T00:00:00Z"
	u, err := env.Engine.SetExecutorAvailability(env.Ctx, "dante", false, "vacation", &until, "admin")
	if err != nil {
		t.Fatalf("set availability: %v", err)
	}
	if u.Executor.Available || u.Executor.UnavailableReason != "vacation" {
		t.Fatalf("executor = %+v", u.Executor)
	}

	// unavailable executors are skipped by admission
	req, executor := env.request(t, engine.RequestCreateOptions{RequesterID: "alice"})
	if executor != nil || req.Status != domain.StatusPending {
		t.Fatalf("request should queue while executor is away, got %s", req.Status)
	}

	if _, err := env.Engine.SetExecutorAvailability(env.Ctx, "dante", true, "", nil, "admin"); err != nil {
		t.Fatal(err)
	}
	assigned, err := env.Engine.AssignPending(env.Ctx, "system")
	if err != nil || len(assigned) != 1 {
		t.Fatalf("retry after return: %v (%d assigned)", err, len(assigned))
	}
	// availability never unassigned existing work
	if _, err := env.Engine.SetExecutorAvailability(env.Ctx, "dante", false, "sick", nil, "admin"); err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.Repo.GetRequest(env.Ctx, assigned[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AssignedTo == nil || *got.AssignedTo != "dante" {
		t.Fatalf("assignment dropped: %+v", got)
	}
}

func TestQueuePositionAndUserQueue(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "alice", domain.RoleUsuario)
	env.user(t, "bob", domain.RoleUsuario)
	env.executor(t, "pia", domain.RolePracticante, 1)

	assignedReq, _ := env.request(t, engine.RequestCreateOptions{RequesterID: "alice", Type: "redes"})
	normal, _ := env.request(t, engine.RequestCreateOptions{RequesterID: "alice", Type: "redes"})
	urgent, _ := env.request(t, engine.RequestCreateOptions{RequesterID: "bob", Type: "redes", Urgency: domain.UrgencyUrgent})

	entry, err := env.Engine.QueuePosition(env.Ctx, urgent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.Position != 1 {
		t.Fatalf("urgent entry = %+v, want position 1", entry)
	}
	entry, err = env.Engine.QueuePosition(env.Ctx, normal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.Position != 2 || entry.Ahead != 1 {
		t.Fatalf("normal entry = %+v, want position 2 behind urgent", entry)
	}

	view, err := env.Engine.UserQueue(env.Ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(view.AsRequester) != 2 {
		t.Fatalf("alice requester tickets = %d, want 2", len(view.AsRequester))
	}
	if len(view.AsExecutor) != 0 {
		t.Fatalf("alice executor tickets = %d, want 0", len(view.AsExecutor))
	}
	view, err = env.Engine.UserQueue(env.Ctx, "pia")
	if err != nil {
		t.Fatal(err)
	}
	if len(view.AsExecutor) != 1 || view.AsExecutor[0].Request.ID != assignedReq.ID {
		t.Fatalf("pia executor tickets = %+v", view.AsExecutor)
	}
}

func TestQueuePositionOfTerminalRequest(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "alice", domain.RoleUsuario)
	env.executor(t, "dante", domain.RoleDisenador, 8)

	req, _ := env.request(t, engine.RequestCreateOptions{RequesterID: "alice"})
	if _, err := env.Engine.SetRequestStatus(env.Ctx, req.ID, domain.StatusReview, "dante"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetRequestStatus(env.Ctx, req.ID, domain.StatusCompleted, "dante"); err != nil {
		t.Fatal(err)
	}
	entry, err := env.Engine.QueuePosition(env.Ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if entry != nil {
		t.Fatalf("terminal request still ranked: %+v", entry)
	}
	if _, err := env.Engine.QueuePosition(env.Ctx, "no-such-id"); err != repo.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestScopedQueueFiltersAndPagination(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "alice", domain.RoleUsuario)

	for i := 0; i < 5; i++ {
		env.request(t, engine.RequestCreateOptions{RequesterID: "alice", Area: "Comunicaciones", Type: "banner"})
	}
	for i := 0; i < 3; i++ {
		env.request(t, engine.RequestCreateOptions{RequesterID: "alice", Area: "Comercial", Type: "banner"})
	}

	view, err := env.Engine.ScopedQueue(env.Ctx, engine.ScopedQueueFilters{Department: "Comunicaciones", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if view.Total != 5 || view.Pages != 3 || len(view.Items) != 2 {
		t.Fatalf("view = total %d pages %d items %d", view.Total, view.Pages, len(view.Items))
	}
	if view.Items[0].Entry.Position != 1 || view.Items[1].Entry.Position != 2 {
		t.Fatalf("page 1 positions = %d, %d", view.Items[0].Entry.Position, view.Items[1].Entry.Position)
	}
	view, err = env.Engine.ScopedQueue(env.Ctx, engine.ScopedQueueFilters{Department: "Comunicaciones", Limit: 2, Page: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Items) != 1 || view.Items[0].Entry.Position != 5 {
		t.Fatalf("last page = %+v", view.Items)
	}

	// alias filter values normalize before matching
	view, err = env.Engine.ScopedQueue(env.Ctx, engine.ScopedQueueFilters{ExecutorType: "designer"})
	if err != nil {
		t.Fatal(err)
	}
	if view.ExecutorType != "diseñador" {
		t.Fatalf("executor type = %s, want diseñador", view.ExecutorType)
	}
	if _, err := env.Engine.ScopedQueue(env.Ctx, engine.ScopedQueueFilters{Stage: "done"}); err == nil {
		t.Fatal("expected invalid stage error")
	}
}

func TestAddComment(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "alice", domain.RoleUsuario)
	env.executor(t, "dante", domain.RoleDisenador, 8)
	req, _ := env.request(t, engine.RequestCreateOptions{RequesterID: "alice"})

	c, err := env.Engine.AddComment(env.Ctx, req.ID, "alice", "  please use the new logo ")
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if c.Text != "please use the new logo" || c.AuthorName != "alice" {
		t.Fatalf("comment = %+v", c)
	}
	if _, err := env.Engine.AddComment(env.Ctx, req.ID, "alice", "   "); err == nil {
		t.Fatal("expected empty comment error")
	}

	comments, err := env.Engine.Repo.ListComments(env.Ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 1 {
		t.Fatalf("comments = %d, want 1", len(comments))
	}
}

func TestCreateUserDefaults(t *testing.T) {
	env := newTestEnv(t)

	u, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{
		ID: "gina", Email: "Gina@Example.COM", FirstName: "Gina", Role: domain.RoleGerente, ActorID: "test",
	})
	if err != nil {
		t.Fatal(err)
	}
	if u.Email != "gina@example.com" {
		t.Fatalf("email = %s", u.Email)
	}
	if u.Executor == nil || u.Executor.Capacity != 15 || u.Executor.Priority != 1 {
		t.Fatalf("gerente defaults = %+v", u.Executor)
	}
	if len(u.Executor.AllowedTypes) != 1 || u.Executor.AllowedTypes[0] != domain.DesignTypeAll {
		t.Fatalf("gerente allowed types = %v", u.Executor.AllowedTypes)
	}

	plain := env.user(t, "paul", "")
	if plain.Role != domain.RoleUsuario || plain.Executor != nil {
		t.Fatalf("default role user = %+v", plain)
	}

	if _, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{ID: "x", Email: "x@example.com", FirstName: "x", Role: "wizard"}); err == nil {
		t.Fatal("expected unknown role error")
	}
}
