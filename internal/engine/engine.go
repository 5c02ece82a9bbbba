package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"reqline/internal/assign"
	"reqline/internal/config"
	"reqline/internal/domain"
	"reqline/internal/events"
	"reqline/internal/queue"
	"reqline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// UserCreateOptions are parameters for creating a user. Executor roles
// get capacity/priority/allowed-types defaults from config unless
// overridden.
type UserCreateOptions struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	Role         string
	Department   string
	Capacity     int
	Priority     int
	AllowedTypes []string
	Specialties  []string
	ActorID      string
}

func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	if e.Config == nil {
		return domain.User{}, errors.New("config not loaded")
	}
	if strings.TrimSpace(opts.Email) == "" {
		return domain.User{}, errors.New("email is required")
	}
	if strings.TrimSpace(opts.FirstName) == "" {
		return domain.User{}, errors.New("first name is required")
	}
	if opts.Role == "" {
		opts.Role = domain.RoleUsuario
	}
	switch opts.Role {
	case domain.RoleAdmin, domain.RoleUsuario:
	default:
		if !domain.IsExecutorRole(opts.Role) {
			return domain.User{}, fmt.Errorf("unknown role %s", opts.Role)
		}
	}
	if opts.Department == "" && len(e.Config.Departments) > 0 {
		opts.Department = e.Config.Departments[0]
	}
	if !e.Config.KnownDepartment(opts.Department) {
		return domain.User{}, fmt.Errorf("unknown department %s", opts.Department)
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	u := domain.User{
		ID:         id,
		Email:      strings.ToLower(strings.TrimSpace(opts.Email)),
		FirstName:  opts.FirstName,
		LastName:   opts.LastName,
		Role:       opts.Role,
		Department: opts.Department,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if domain.IsExecutorRole(opts.Role) {
		defaults, _ := e.Config.RoleDefaults(opts.Role)
		profile := &domain.ExecutorProfile{
			Capacity:     defaults.Capacity,
			Priority:     defaults.Priority,
			Available:    true,
			AllowedTypes: defaults.AllowedTypes,
			Specialties:  opts.Specialties,
			Stats:        domain.ExecutorStats{OnTimeRate: 100},
		}
		if opts.Capacity > 0 {
			profile.Capacity = opts.Capacity
		}
		if opts.Priority > 0 {
			profile.Priority = opts.Priority
		}
		if len(opts.AllowedTypes) > 0 {
			profile.AllowedTypes = opts.AllowedTypes
		}
		if profile.Capacity <= 0 {
			return domain.User{}, fmt.Errorf("executor %s needs a positive capacity", id)
		}
		u.Executor = profile
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureDepartment(ctx, tx, u.Department, now); err != nil {
		return domain.User{}, fmt.Errorf("ensure department: %w", err)
	}
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "user.created", "user", u.ID, opts.ActorID, events.EventPayload{"role": u.Role, "department": u.Department}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// RequestCreateOptions are parameters for admitting a request.
type RequestCreateOptions struct {
	ID            string
	RequesterID   string
	Area          string
	Type          string
	PreferredRole string
	Title         string
	Description   string
	Urgency       string
	DeliveryDate  string
	ActorID       string
}

// CreateRequest admits a request and runs the assignment pass. On
// success the request comes back in-process with an executor; otherwise
// it stays pending with queuedAt stamped, waiting for the next
// create/poll cycle. The returned user is nil when unassigned.
func (e Engine) CreateRequest(ctx context.Context, opts RequestCreateOptions) (domain.Request, *domain.User, error) {
	if e.Config == nil {
		return domain.Request{}, nil, errors.New("config not loaded")
	}
	if opts.Title == "" {
		return domain.Request{}, nil, errors.New("title is required")
	}
	if opts.Area == "" {
		return domain.Request{}, nil, errors.New("area is required")
	}
	if opts.Type == "" {
		return domain.Request{}, nil, errors.New("type is required")
	}
	if !e.Config.KnownDepartment(opts.Area) {
		return domain.Request{}, nil, fmt.Errorf("unknown area %s", opts.Area)
	}
	if !e.Config.KnownDesignType(opts.Type) {
		return domain.Request{}, nil, fmt.Errorf("unknown design type %s", opts.Type)
	}
	if opts.Urgency == "" {
		opts.Urgency = domain.UrgencyNormal
	}
	switch opts.Urgency {
	case domain.UrgencyNormal, domain.UrgencyUrgent, domain.UrgencyExpress:
	default:
		return domain.Request{}, nil, fmt.Errorf("invalid urgency %s", opts.Urgency)
	}
	if opts.PreferredRole != "" && !domain.IsExecutorRole(opts.PreferredRole) {
		return domain.Request{}, nil, fmt.Errorf("invalid preferred executor role %s", opts.PreferredRole)
	}
	requester, err := e.Repo.GetUser(ctx, opts.RequesterID)
	if err != nil {
		return domain.Request{}, nil, fmt.Errorf("requester: %w", err)
	}

	now := e.now().UTC()
	nowStr := now.Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	req := domain.Request{
		ID:            id,
		RequestNumber: requestNumber(now, id),
		RequesterID:   requester.ID,
		Area:          opts.Area,
		Type:          opts.Type,
		PreferredRole: opts.PreferredRole,
		Title:         opts.Title,
		Description:   opts.Description,
		Urgency:       opts.Urgency,
		Status:        domain.StatusPending,
		QueuedAt:      nowStr,
		DeliveryDate:  opts.DeliveryDate,
		CreatedAt:     nowStr,
		UpdatedAt:     nowStr,
	}

	roster, err := e.executorCandidates(ctx)
	if err != nil {
		return domain.Request{}, nil, err
	}
	chosen, err := assign.Select(&req, roster)
	if err != nil {
		return domain.Request{}, nil, fmt.Errorf("assignment: %w", err)
	}
	if chosen != nil {
		req.Status = domain.StatusInProcess
		req.AssignedTo = &chosen.ID
		assignedAt := nowStr
		req.AssignedAt = &assignedAt
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Request{}, nil, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRequest(ctx, tx, req); err != nil {
		return domain.Request{}, nil, fmt.Errorf("insert request: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "request.created", "request", req.ID, opts.ActorID, events.EventPayload{
		"request_number": req.RequestNumber,
		"urgency":        req.Urgency,
		"area":           req.Area,
		"type":           req.Type,
	}); err != nil {
		return domain.Request{}, nil, err
	}
	if chosen != nil {
		if err := e.Events.Append(ctx, tx, "request.assigned", "request", req.ID, opts.ActorID, events.EventPayload{
			"assigned_to": chosen.ID,
			"mode":        "auto",
		}); err != nil {
			return domain.Request{}, nil, err
		}
	} else {
		if err := e.Events.Append(ctx, tx, "request.queued", "request", req.ID, opts.ActorID, events.EventPayload{
			"queued_at": req.QueuedAt,
		}); err != nil {
			return domain.Request{}, nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Request{}, nil, err
	}

	if chosen == nil {
		return req, nil, nil
	}
	if _, err := e.RefreshExecutorStats(ctx, chosen.ID, opts.ActorID); err != nil {
		return req, nil, err
	}
	executor, err := e.Repo.GetUser(ctx, chosen.ID)
	if err != nil {
		return req, nil, err
	}
	return req, &executor, nil
}

func requestNumber(now time.Time, id string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(suffix) > 4 {
		suffix = suffix[:4]
	}
	return fmt.Sprintf("REQ-%s-%s", now.Format("20060102"), suffix)
}

// executorCandidates snapshots the roster with loads derived from the
// live request set. The returned slice is never nil.
func (e Engine) executorCandidates(ctx context.Context) ([]assign.Candidate, error) {
	users, err := e.Repo.ListExecutors(ctx)
	if err != nil {
		return nil, err
	}
	loads, err := e.Repo.ActiveCountByAssignee(ctx)
	if err != nil {
		return nil, err
	}
	roster := make([]assign.Candidate, 0, len(users))
	for _, u := range users {
		if u.Executor == nil {
			continue
		}
		roster = append(roster, assign.Candidate{
			ID:           u.ID,
			Role:         u.Role,
			Priority:     u.Executor.Priority,
			Capacity:     u.Executor.Capacity,
			Available:    u.Executor.Available,
			AllowedTypes: u.Executor.AllowedTypes,
			CurrentLoad:  loads[u.ID],
		})
	}
	return roster, nil
}

func ensureRequestTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.StatusPending:
		if newStatus == domain.StatusInProcess || newStatus == domain.StatusRejected {
			return nil
		}
	case domain.StatusInProcess:
		if newStatus == domain.StatusReview || newStatus == domain.StatusRejected {
			return nil
		}
	case domain.StatusReview:
		if newStatus == domain.StatusCompleted || newStatus == domain.StatusRejected {
			return nil
		}
	}
	return fmt.Errorf("invalid request status transition %s -> %s", oldStatus, newStatus)
}

// SetRequestStatus advances a request through its lifecycle. Terminal
// transitions trigger a stats refresh for the assignee.
func (e Engine) SetRequestStatus(ctx context.Context, id, status, actorID string) (domain.Request, error) {
	req, err := e.Repo.GetRequest(ctx, id)
	if err != nil {
		return req, err
	}
	if err := ensureRequestTransition(req.Status, status); err != nil {
		return req, err
	}
	oldStatus := req.Status
	nowStr := e.now().UTC().Format(time.RFC3339)
	req.Status = status
	req.UpdatedAt = nowStr
	if status == domain.StatusCompleted {
		req.CompletedAt = &nowStr
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return req, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateRequest(ctx, tx, req); err != nil {
		return req, err
	}
	if err := e.Events.Append(ctx, tx, "request.status.changed", "request", req.ID, actorID, events.EventPayload{
		"from": oldStatus,
		"to":   status,
	}); err != nil {
		return req, err
	}
	if err := tx.Commit(); err != nil {
		return req, err
	}
	if !domain.IsActiveStatus(status) && req.AssignedTo != nil {
		if _, err := e.RefreshExecutorStats(ctx, *req.AssignedTo, actorID); err != nil {
			return req, err
		}
	}
	return req, nil
}

// ClaimRequest manually assigns a pending request to an executor after
// the same capacity and eligibility checks the auto-assigner applies.
// Claiming an already-assigned request is a conflict, never a no-op.
func (e Engine) ClaimRequest(ctx context.Context, requestID, executorID, actorID string) (domain.Request, error) {
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return req, err
	}
	if req.AssignedTo != nil {
		return req, fmt.Errorf("request %s already assigned", req.RequestNumber)
	}
	if req.Status != domain.StatusPending {
		return req, fmt.Errorf("request %s is not pending", req.RequestNumber)
	}
	roster, err := e.executorCandidates(ctx)
	if err != nil {
		return req, err
	}
	var candidate *assign.Candidate
	for i := range roster {
		if roster[i].ID == executorID {
			candidate = &roster[i]
			break
		}
	}
	if candidate == nil {
		return req, fmt.Errorf("executor %s not in roster", executorID)
	}
	claimReq := req
	claimReq.PreferredRole = "" // a direct claim overrides role preference
	if !assign.Eligible(*candidate, claimReq) {
		return req, fmt.Errorf("executor %s not eligible for request %s", executorID, req.RequestNumber)
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	req.Status = domain.StatusInProcess
	req.AssignedTo = &executorID
	req.AssignedAt = &nowStr
	req.UpdatedAt = nowStr
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return req, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateRequest(ctx, tx, req); err != nil {
		return req, err
	}
	if err := e.Events.Append(ctx, tx, "request.assigned", "request", req.ID, actorID, events.EventPayload{
		"assigned_to": executorID,
		"mode":        "claim",
	}); err != nil {
		return req, err
	}
	if err := tx.Commit(); err != nil {
		return req, err
	}
	if _, err := e.RefreshExecutorStats(ctx, executorID, actorID); err != nil {
		return req, err
	}
	return req, nil
}

// AssignPending is the retry pass: it walks still-pending requests in
// queue order and assigns whichever now fit. The cadence is the
// caller's concern; a single pass is bounded and deterministic.
func (e Engine) AssignPending(ctx context.Context, actorID string) ([]domain.Request, error) {
	pending, err := e.Repo.PendingUnassigned(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}
	sort.Slice(pending, func(i, j int) bool { return queue.Less(pending[i], pending[j]) })
	roster, err := e.executorCandidates(ctx)
	if err != nil {
		return nil, err
	}
	var assigned []domain.Request
	for _, req := range pending {
		chosen, err := assign.Select(&req, roster)
		if err != nil {
			return assigned, err
		}
		if chosen == nil {
			continue
		}
		nowStr := e.now().UTC().Format(time.RFC3339)
		req.Status = domain.StatusInProcess
		req.AssignedTo = &chosen.ID
		req.AssignedAt = &nowStr
		req.UpdatedAt = nowStr
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return assigned, err
		}
		if err := e.Repo.UpdateRequest(ctx, tx, req); err != nil {
			tx.Rollback()
			return assigned, err
		}
		if err := e.Events.Append(ctx, tx, "request.assigned", "request", req.ID, actorID, events.EventPayload{
			"assigned_to": chosen.ID,
			"mode":        "retry",
		}); err != nil {
			tx.Rollback()
			return assigned, err
		}
		if err := tx.Commit(); err != nil {
			return assigned, err
		}
		for i := range roster {
			if roster[i].ID == chosen.ID {
				roster[i].CurrentLoad++
			}
		}
		assigned = append(assigned, req)
	}
	for _, req := range assigned {
		if _, err := e.RefreshExecutorStats(ctx, *req.AssignedTo, actorID); err != nil {
			return assigned, err
		}
	}
	return assigned, nil
}

// RefreshExecutorStats recomputes the executor's derived statistics from
// the request set. This is a read-through refresh, not a counter
// increment: calling it repeatedly is safe.
func (e Engine) RefreshExecutorStats(ctx context.Context, executorID, actorID string) (domain.ExecutorStats, error) {
	u, err := e.Repo.GetUser(ctx, executorID)
	if err != nil {
		return domain.ExecutorStats{}, err
	}
	if !u.IsExecutor() {
		return domain.ExecutorStats{}, fmt.Errorf("user %s is not an executor", executorID)
	}
	completed, err := e.Repo.CompletedByAssignee(ctx, executorID)
	if err != nil {
		return domain.ExecutorStats{}, err
	}
	loads, err := e.Repo.ActiveCountByAssignee(ctx)
	if err != nil {
		return domain.ExecutorStats{}, err
	}
	stats := domain.ExecutorStats{
		TotalCompleted: len(completed),
		OnTimeRate:     100,
		CurrentLoad:    loads[executorID],
	}
	if len(completed) > 0 {
		var totalDays float64
		onTime := 0
		for _, req := range completed {
			done := parseTime(deref(req.CompletedAt))
			created := parseTime(req.CreatedAt)
			if !done.IsZero() && !created.IsZero() {
				totalDays += done.Sub(created).Hours() / 24
			}
			deadline := parseTime(req.DeliveryDate)
			if deadline.IsZero() || !done.After(deadline) {
				onTime++
			}
		}
		stats.AverageCompletionDays = totalDays / float64(len(completed))
		stats.OnTimeRate = float64(onTime) / float64(len(completed)) * 100
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateExecutorStats(ctx, tx, executorID, stats, nowStr); err != nil {
		return stats, err
	}
	if err := tx.Commit(); err != nil {
		return stats, err
	}
	return stats, nil
}

// SetExecutorAvailability flips the availability flag with an optional
// reason and return date. Unavailable executors drop out of the
// candidate pool but keep their current assignments.
func (e Engine) SetExecutorAvailability(ctx context.Context, executorID string, available bool, reason string, until *string, actorID string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, executorID)
	if err != nil {
		return u, err
	}
	if !u.IsExecutor() {
		return u, fmt.Errorf("user %s is not an executor", executorID)
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return u, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateExecutorAvailability(ctx, tx, executorID, available, reason, until, nowStr); err != nil {
		return u, err
	}
	if err := e.Events.Append(ctx, tx, "executor.availability.changed", "user", executorID, actorID, events.EventPayload{
		"available": available,
		"reason":    reason,
	}); err != nil {
		return u, err
	}
	if err := tx.Commit(); err != nil {
		return u, err
	}
	return e.Repo.GetUser(ctx, executorID)
}

func (e Engine) AddComment(ctx context.Context, requestID, authorID, text string) (domain.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Comment{}, errors.New("comment text is required")
	}
	if _, err := e.Repo.GetRequest(ctx, requestID); err != nil {
		return domain.Comment{}, err
	}
	author, err := e.Repo.GetUser(ctx, authorID)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("author: %w", err)
	}
	c := domain.Comment{
		ID:         uuid.New().String(),
		RequestID:  requestID,
		AuthorID:   authorID,
		AuthorName: author.FullName(),
		Text:       strings.TrimSpace(text),
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
		return c, err
	}
	if err := e.Events.Append(ctx, tx, "request.commented", "request", requestID, authorID, events.EventPayload{"comment_id": c.ID}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

// --- queue reads ---

// QueueTicket pairs a request with its derived queue entry.
type QueueTicket struct {
	Request domain.Request `json:"request"`
	Entry   queue.Entry    `json:"entry"`
}

// QueuePosition answers "where do I stand" for one request. A nil entry
// with a nil error means the request exists but is out of the active
// queue.
func (e Engine) QueuePosition(ctx context.Context, requestID string) (*queue.Entry, error) {
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	active, err := e.Repo.ActiveRequests(ctx)
	if err != nil {
		return nil, err
	}
	return queue.For(req, active), nil
}

type UserQueueView struct {
	AsRequester []QueueTicket `json:"as_requester"`
	AsExecutor  []QueueTicket `json:"as_executor"`
}

// UserQueue returns the querying user's active tickets with queue
// entries, split by relationship.
func (e Engine) UserQueue(ctx context.Context, userID string) (UserQueueView, error) {
	active, err := e.Repo.ActiveRequests(ctx)
	if err != nil {
		return UserQueueView{}, err
	}
	index := queue.Rank(active)
	view := UserQueueView{AsRequester: []QueueTicket{}, AsExecutor: []QueueTicket{}}
	for _, req := range active {
		entry, ok := index[req.ID]
		if !ok {
			continue
		}
		ticket := QueueTicket{Request: req, Entry: entry}
		if req.RequesterID == userID {
			view.AsRequester = append(view.AsRequester, ticket)
		}
		if req.AssignedTo != nil && *req.AssignedTo == userID {
			view.AsExecutor = append(view.AsExecutor, ticket)
		}
	}
	sortTickets(view.AsRequester)
	sortTickets(view.AsExecutor)
	return view, nil
}

type ScopedQueueFilters struct {
	Department   string
	ExecutorType string
	Stage        string
	Page         int
	Limit        int
}

type ScopedQueueView struct {
	Department   string        `json:"department,omitempty"`
	ExecutorType string        `json:"executor_type,omitempty"`
	Stage        string        `json:"stage,omitempty"`
	Page         int           `json:"page"`
	Limit        int           `json:"limit"`
	Total        int           `json:"total"`
	Pages        int           `json:"pages"`
	Items        []QueueTicket `json:"items"`
}

// ScopedQueue is the administrator view: the full ranked queue filtered
// by department, executor type and/or stage, sorted by (stage, scope,
// position), paginated.
func (e Engine) ScopedQueue(ctx context.Context, f ScopedQueueFilters) (ScopedQueueView, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	if f.ExecutorType != "" {
		f.ExecutorType = queue.NormalizeExecutorType(f.ExecutorType)
	}
	if f.Stage != "" && f.Stage != queue.StagePending && f.Stage != queue.StageAssigned {
		return ScopedQueueView{}, fmt.Errorf("invalid stage %s", f.Stage)
	}

	active, err := e.Repo.ActiveRequests(ctx)
	if err != nil {
		return ScopedQueueView{}, err
	}
	index := queue.Rank(active)
	var tickets []QueueTicket
	for _, req := range active {
		entry, ok := index[req.ID]
		if !ok {
			continue
		}
		if f.Department != "" && entry.Scope.Department != f.Department {
			continue
		}
		if f.ExecutorType != "" && entry.Scope.ExecutorType != f.ExecutorType {
			continue
		}
		if f.Stage != "" && entry.Stage != f.Stage {
			continue
		}
		tickets = append(tickets, QueueTicket{Request: req, Entry: entry})
	}
	sortTickets(tickets)

	total := len(tickets)
	pages := (total + f.Limit - 1) / f.Limit
	if pages < 1 {
		pages = 1
	}
	start := (f.Page - 1) * f.Limit
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return ScopedQueueView{
		Department:   f.Department,
		ExecutorType: f.ExecutorType,
		Stage:        f.Stage,
		Page:         f.Page,
		Limit:        f.Limit,
		Total:        total,
		Pages:        pages,
		Items:        tickets[start:end],
	}, nil
}

func sortTickets(tickets []QueueTicket) {
	sort.Slice(tickets, func(i, j int) bool {
		return queue.LessEntries(tickets[i].Entry, tickets[j].Entry)
	})
}

// --- helpers ---

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
