package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"reqline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const userColumns = `id,email,first_name,last_name,role,department,is_active,
capacity,priority,available,COALESCE(unavailable_reason,''),unavailable_until,
allowed_types_json,specialties_json,total_completed,avg_completion_days,on_time_rate,
created_at,updated_at`

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var (
		u            domain.User
		active       int
		capacity     sql.NullInt64
		priority     sql.NullInt64
		available    int
		reason       string
		until        sql.NullString
		allowedJSON  sql.NullString
		specialsJSON sql.NullString
		stats        domain.ExecutorStats
	)
	err := scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.Department, &active,
		&capacity, &priority, &available, &reason, &until,
		&allowedJSON, &specialsJSON, &stats.TotalCompleted, &stats.AverageCompletionDays, &stats.OnTimeRate,
		&u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.Active = active != 0
	if capacity.Valid {
		profile := &domain.ExecutorProfile{
			Capacity:          int(capacity.Int64),
			Priority:          int(priority.Int64),
			Available:         available != 0,
			UnavailableReason: reason,
			Stats:             stats,
		}
		if until.Valid && until.String != "" {
			v := until.String
			profile.UnavailableUntil = &v
		}
		if allowedJSON.Valid && allowedJSON.String != "" {
			_ = json.Unmarshal([]byte(allowedJSON.String), &profile.AllowedTypes)
		}
		if specialsJSON.Valid && specialsJSON.String != "" {
			_ = json.Unmarshal([]byte(specialsJSON.String), &profile.Specialties)
		}
		u.Executor = profile
	}
	return u, nil
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	var (
		capacity, priority any
		available          = 1
		reason, until      any
		allowed, specials  any
		stats              domain.ExecutorStats
	)
	if u.Executor != nil {
		capacity = u.Executor.Capacity
		priority = u.Executor.Priority
		if !u.Executor.Available {
			available = 0
		}
		reason = nullable(u.Executor.UnavailableReason)
		until = nullableStringPtr(u.Executor.UnavailableUntil)
		allowed = toJSON(u.Executor.AllowedTypes)
		specials = toJSON(u.Executor.Specialties)
		stats = u.Executor.Stats
	}
	activeVal := 0
	if u.Active {
		activeVal = 1
	}
	exec := execer(r.DB, tx)
	_, err := exec(ctx, `INSERT INTO users(id,email,first_name,last_name,role,department,is_active,
capacity,priority,available,unavailable_reason,unavailable_until,allowed_types_json,specialties_json,
total_completed,avg_completion_days,on_time_rate,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		u.ID, strings.ToLower(strings.TrimSpace(u.Email)), u.FirstName, u.LastName, u.Role, u.Department, activeVal,
		capacity, priority, available, reason, until, allowed, specials,
		stats.TotalCompleted, stats.AverageCompletionDays, stats.OnTimeRate, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row.Scan)
}

type UserFilters struct {
	Role       string
	Department string
	ActiveOnly bool
}

func (r Repo) ListUsers(ctx context.Context, f UserFilters) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var (
		clauses []string
		args    []any
	)
	if f.Role != "" {
		clauses = append(clauses, "role=?")
		args = append(args, f.Role)
	}
	if f.Department != "" {
		clauses = append(clauses, "department=?")
		args = append(args, f.Department)
	}
	if f.ActiveOnly {
		clauses = append(clauses, "is_active=1")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListExecutors returns active users in the executor roles. Loads are not
// included; callers derive them from the live request set.
func (r Repo) ListExecutors(ctx context.Context) ([]domain.User, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(domain.ExecutorRoles)), ",")
	query := `SELECT ` + userColumns + ` FROM users WHERE is_active=1 AND role IN (` + placeholders + `) ORDER BY priority ASC, id ASC`
	args := make([]any, len(domain.ExecutorRoles))
	for i, role := range domain.ExecutorRoles {
		args[i] = role
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r Repo) UpdateExecutorAvailability(ctx context.Context, tx *sql.Tx, id string, available bool, reason string, until *string, now string) error {
	availableVal := 0
	if available {
		availableVal = 1
	}
	exec := execer(r.DB, tx)
	res, err := exec(ctx, `UPDATE users SET available=?, unavailable_reason=?, unavailable_until=?, updated_at=? WHERE id=? AND capacity IS NOT NULL`,
		availableVal, nullable(reason), nullableStringPtr(until), now, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateExecutorStats(ctx context.Context, tx *sql.Tx, id string, stats domain.ExecutorStats, now string) error {
	exec := execer(r.DB, tx)
	res, err := exec(ctx, `UPDATE users SET total_completed=?, avg_completion_days=?, on_time_rate=?, updated_at=? WHERE id=?`,
		stats.TotalCompleted, stats.AverageCompletionDays, stats.OnTimeRate, now, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const requestColumns = `id,request_number,requester_id,area,type,COALESCE(preferred_role,''),title,description,
urgency,status,assigned_to,assigned_at,queued_at,COALESCE(delivery_date,''),completed_at,created_at,updated_at`

func scanRequest(scan func(dest ...any) error) (domain.Request, error) {
	var (
		req         domain.Request
		assignedTo  sql.NullString
		assignedAt  sql.NullString
		completedAt sql.NullString
	)
	err := scan(&req.ID, &req.RequestNumber, &req.RequesterID, &req.Area, &req.Type, &req.PreferredRole,
		&req.Title, &req.Description, &req.Urgency, &req.Status, &assignedTo, &assignedAt,
		&req.QueuedAt, &req.DeliveryDate, &completedAt, &req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return req, ErrNotFound
	}
	if err != nil {
		return req, err
	}
	if assignedTo.Valid && assignedTo.String != "" {
		v := assignedTo.String
		req.AssignedTo = &v
	}
	if assignedAt.Valid && assignedAt.String != "" {
		v := assignedAt.String
		req.AssignedAt = &v
	}
	if completedAt.Valid && completedAt.String != "" {
		v := completedAt.String
		req.CompletedAt = &v
	}
	return req, nil
}

func (r Repo) InsertRequest(ctx context.Context, tx *sql.Tx, req domain.Request) error {
	exec := execer(r.DB, tx)
	_, err := exec(ctx, `INSERT INTO requests(id,request_number,requester_id,area,type,preferred_role,title,description,
urgency,status,assigned_to,assigned_at,queued_at,delivery_date,completed_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		req.ID, req.RequestNumber, req.RequesterID, req.Area, req.Type, nullable(req.PreferredRole),
		req.Title, req.Description, req.Urgency, req.Status,
		nullableStringPtr(req.AssignedTo), nullableStringPtr(req.AssignedAt),
		req.QueuedAt, nullable(req.DeliveryDate), nullableStringPtr(req.CompletedAt),
		req.CreatedAt, req.UpdatedAt)
	return err
}

func (r Repo) UpdateRequest(ctx context.Context, tx *sql.Tx, req domain.Request) error {
	exec := execer(r.DB, tx)
	res, err := exec(ctx, `UPDATE requests SET area=?,type=?,preferred_role=?,title=?,description=?,urgency=?,status=?,
assigned_to=?,assigned_at=?,queued_at=?,delivery_date=?,completed_at=?,updated_at=? WHERE id=?`,
		req.Area, req.Type, nullable(req.PreferredRole), req.Title, req.Description, req.Urgency, req.Status,
		nullableStringPtr(req.AssignedTo), nullableStringPtr(req.AssignedAt),
		req.QueuedAt, nullable(req.DeliveryDate), nullableStringPtr(req.CompletedAt), req.UpdatedAt, req.ID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetRequest(ctx context.Context, id string) (domain.Request, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id=?`, id)
	return scanRequest(row.Scan)
}

func (r Repo) GetRequestByNumber(ctx context.Context, number string) (domain.Request, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE request_number=?`, number)
	return scanRequest(row.Scan)
}

type RequestFilters struct {
	RequesterID string
	AssignedTo  string
	Status      string
	Area        string
	Urgency     string
	Limit       int
	Offset      int
}

func (f RequestFilters) clauses() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.RequesterID != "" {
		clauses = append(clauses, "requester_id=?")
		args = append(args, f.RequesterID)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Area != "" {
		clauses = append(clauses, "area=?")
		args = append(args, f.Area)
	}
	if f.Urgency != "" {
		clauses = append(clauses, "urgency=?")
		args = append(args, f.Urgency)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r Repo) ListRequests(ctx context.Context, f RequestFilters) ([]domain.Request, error) {
	where, args := f.clauses()
	query := `SELECT ` + requestColumns + ` FROM requests` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var requests []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (r Repo) CountRequests(ctx context.Context, f RequestFilters) (int, error) {
	where, args := f.clauses()
	var total int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests`+where, args...).Scan(&total)
	return total, err
}

// ActiveRequests returns the snapshot the queue ranking and assignment
// engines operate on.
func (r Repo) ActiveRequests(ctx context.Context) ([]domain.Request, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+requestColumns+` FROM requests
WHERE status IN ('pending','in-process','review') ORDER BY queued_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var requests []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// ActiveCountByAssignee derives every executor's current load from the
// live request set.
func (r Repo) ActiveCountByAssignee(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT assigned_to, COUNT(*) FROM requests
WHERE assigned_to IS NOT NULL AND status IN ('pending','in-process','review') GROUP BY assigned_to`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// PendingUnassigned returns pending requests with no executor, in
// arrival order. The retry pass re-ranks them before assigning.
func (r Repo) PendingUnassigned(ctx context.Context) ([]domain.Request, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+requestColumns+` FROM requests
WHERE status='pending' AND assigned_to IS NULL ORDER BY queued_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var requests []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// CompletedByAssignee feeds the read-through stats refresh.
func (r Repo) CompletedByAssignee(ctx context.Context, executorID string) ([]domain.Request, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+requestColumns+` FROM requests
WHERE assigned_to=? AND status='completed' ORDER BY completed_at ASC, id ASC`, executorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var requests []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	exec := execer(r.DB, tx)
	_, err := exec(ctx, `INSERT INTO comments(id,request_id,author_id,author_name,body,created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.RequestID, c.AuthorID, c.AuthorName, c.Text, c.CreatedAt)
	return err
}

func (r Repo) ListComments(ctx context.Context, requestID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,request_id,author_id,author_name,body,created_at FROM comments WHERE request_id=? ORDER BY created_at ASC, id ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var comments []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.RequestID, &c.AuthorID, &c.AuthorName, &c.Text, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (r Repo) EnsureDepartment(ctx context.Context, tx *sql.Tx, name, now string) error {
	exec := execer(r.DB, tx)
	_, err := exec(ctx, `INSERT OR IGNORE INTO departments(name,created_at) VALUES (?,?)`, name, now)
	return err
}

func (r Repo) ListDepartments(ctx context.Context) ([]domain.Department, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT name,created_at FROM departments ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var departments []domain.Department
	for rows.Next() {
		var d domain.Department
		if err := rows.Scan(&d.Name, &d.CreatedAt); err != nil {
			return nil, err
		}
		departments = append(departments, d)
	}
	return departments, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	var (
		clauses []string
		args    []any
	)
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// EventsAfter returns events with id greater than cursor in ascending
// order, for the webhook dispatcher.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		fmt.Sprintf(`SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT %d`, limit), cursor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}

// --- helpers ---

func execer(db *sql.DB, tx *sql.Tx) func(context.Context, string, ...any) (sql.Result, error) {
	if tx != nil {
		return tx.ExecContext
	}
	return db.ExecContext
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func toJSON(items []string) any {
	if len(items) == 0 {
		return nil
	}
	b, _ := json.Marshal(items)
	return string(b)
}
