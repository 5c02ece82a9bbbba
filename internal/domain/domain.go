package domain

// Request statuses. Active statuses count toward queue and executor load.
const (
	StatusPending   = "pending"
	StatusInProcess = "in-process"
	StatusReview    = "review"
	StatusCompleted = "completed"
	StatusRejected  = "rejected"
)

// ActiveStatuses lists the statuses that keep a request in the live queue.
var ActiveStatuses = []string{StatusPending, StatusInProcess, StatusReview}

// IsActiveStatus reports whether a request in this status counts toward
// queue ranking and executor load.
func IsActiveStatus(status string) bool {
	switch status {
	case StatusPending, StatusInProcess, StatusReview:
		return true
	}
	return false
}

// Urgency levels, in ascending priority.
const (
	UrgencyNormal  = "normal"
	UrgencyUrgent  = "urgent"
	UrgencyExpress = "express"
)

// UrgencyWeight maps urgency to its ranking weight. Unknown values rank
// as normal so ranking stays total over any input.
func UrgencyWeight(urgency string) int {
	switch urgency {
	case UrgencyExpress:
		return 3
	case UrgencyUrgent:
		return 2
	default:
		return 1
	}
}

// Executor roles, ranked by tier. Lower tier number is served first.
const (
	RoleAdmin       = "admin"
	RoleGerente     = "gerente"
	RoleDisenador   = "diseñador"
	RolePracticante = "practicante"
	RoleUsuario     = "usuario"
)

// ExecutorRoles lists the roles that can be auto-assigned work.
var ExecutorRoles = []string{RoleGerente, RoleDisenador, RolePracticante}

// IsExecutorRole reports whether the role belongs to the executor pool.
func IsExecutorRole(role string) bool {
	for _, r := range ExecutorRoles {
		if r == role {
			return true
		}
	}
	return false
}

// DesignTypeAll is the wildcard entry in an executor's allowed design types.
const DesignTypeAll = "all"

type Request struct {
	ID            string  `json:"id"`
	RequestNumber string  `json:"request_number"`
	RequesterID   string  `json:"requester_id"`
	Area          string  `json:"area"`
	Type          string  `json:"type"`
	PreferredRole string  `json:"preferred_role,omitempty"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	Urgency       string  `json:"urgency" enum:"normal,urgent,express"`
	Status        string  `json:"status" enum:"pending,in-process,review,completed,rejected"`
	AssignedTo    *string `json:"assigned_to,omitempty"`
	AssignedAt    *string `json:"assigned_at,omitempty" format:"date-time"`
	QueuedAt      string  `json:"queued_at" format:"date-time"`
	DeliveryDate  string  `json:"delivery_date,omitempty" format:"date-time"`
	CompletedAt   *string `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

// ExecutorStats are derived from the request set, never incremented in
// place. CurrentLoad in particular must be recomputed before any
// assignment decision.
type ExecutorStats struct {
	TotalCompleted        int     `json:"total_completed"`
	AverageCompletionDays float64 `json:"average_completion_days"`
	OnTimeRate            float64 `json:"on_time_rate"`
	CurrentLoad           int     `json:"current_load"`
}

// ExecutorProfile holds assignment-relevant executor fields. It is only
// present on users with an executor role.
type ExecutorProfile struct {
	Capacity          int           `json:"capacity"`
	Priority          int           `json:"priority"`
	Available         bool          `json:"available"`
	UnavailableReason string        `json:"unavailable_reason,omitempty"`
	UnavailableUntil  *string       `json:"unavailable_until,omitempty" format:"date-time"`
	AllowedTypes      []string      `json:"allowed_types"`
	Specialties       []string      `json:"specialties,omitempty"`
	Stats             ExecutorStats `json:"stats"`
}

type User struct {
	ID         string           `json:"id"`
	Email      string           `json:"email"`
	FirstName  string           `json:"first_name"`
	LastName   string           `json:"last_name"`
	Role       string           `json:"role" enum:"admin,gerente,diseñador,practicante,usuario"`
	Department string           `json:"department"`
	Active     bool             `json:"active"`
	Executor   *ExecutorProfile `json:"executor,omitempty"`
	CreatedAt  string           `json:"created_at" format:"date-time"`
	UpdatedAt  string           `json:"updated_at" format:"date-time"`
}

// FullName is used in notifications and CLI tables.
func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsExecutor reports whether the user participates in auto-assignment.
func (u User) IsExecutor() bool {
	return IsExecutorRole(u.Role) && u.Executor != nil
}

type Comment struct {
	ID         string `json:"id"`
	RequestID  string `json:"request_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Department struct {
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
