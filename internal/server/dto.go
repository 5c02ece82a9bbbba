package server

import (
	"encoding/json"

	"reqline/internal/domain"
	"reqline/internal/engine"
	"reqline/internal/queue"
)

// Request payloads

type CreateRequestPayload struct {
	ID            *string `json:"id,omitempty"`
	Area          string  `json:"area"`
	Type          string  `json:"type"`
	PreferredRole *string `json:"preferred_role,omitempty" enum:"gerente,diseñador,practicante"`
	Title         string  `json:"title"`
	Description   *string `json:"description,omitempty"`
	Urgency       *string `json:"urgency,omitempty" enum:"normal,urgent,express"`
	DeliveryDate  *string `json:"delivery_date,omitempty" format:"date-time"`
}

type SetStatusPayload struct {
	Status string `json:"status" enum:"in-process,review,completed,rejected"`
}

type ClaimPayload struct {
	ExecutorID *string `json:"executor_id,omitempty"`
}

type CommentPayload struct {
	Text string `json:"text"`
}

type CreateUserPayload struct {
	ID           *string  `json:"id,omitempty"`
	Email        string   `json:"email"`
	FirstName    string   `json:"first_name"`
	LastName     *string  `json:"last_name,omitempty"`
	Role         *string  `json:"role,omitempty" enum:"admin,gerente,diseñador,practicante,usuario"`
	Department   *string  `json:"department,omitempty"`
	Capacity     *int     `json:"capacity,omitempty"`
	Priority     *int     `json:"priority,omitempty"`
	AllowedTypes []string `json:"allowed_types,omitempty"`
	Specialties  []string `json:"specialties,omitempty"`
}

type AvailabilityPayload struct {
	Available bool    `json:"available"`
	Reason    *string `json:"reason,omitempty"`
	Until     *string `json:"until,omitempty" format:"date-time"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

type RequestResponse struct {
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

type CreateRequestResponse struct {
	Request    RequestResponse `json:"request"`
	AssignedTo *UserResponse   `json:"assigned_to,omitempty"`
	Queued     bool            `json:"queued"`
}

type CommentResponse struct {
	ID         string `json:"id"`
	RequestID  string `json:"request_id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type ExecutorStatsResponse struct {
	TotalCompleted        int     `json:"total_completed"`
	AverageCompletionDays float64 `json:"average_completion_days"`
	OnTimeRate            float64 `json:"on_time_rate"`
	CurrentLoad           int     `json:"current_load"`
}

type ExecutorProfileResponse struct {
	Capacity          int                   `json:"capacity"`
	Priority          int                   `json:"priority"`
	Available         bool                  `json:"available"`
	UnavailableReason string                `json:"unavailable_reason,omitempty"`
	UnavailableUntil  *string               `json:"unavailable_until,omitempty" format:"date-time"`
	AllowedTypes      []string              `json:"allowed_types"`
	Specialties       []string              `json:"specialties,omitempty"`
	Stats             ExecutorStatsResponse `json:"stats"`
}

type UserResponse struct {
	ID         string                   `json:"id"`
	Email      string                   `json:"email"`
	FirstName  string                   `json:"first_name"`
	LastName   string                   `json:"last_name,omitempty"`
	Role       string                   `json:"role" enum:"admin,gerente,diseñador,practicante,usuario"`
	Department string                   `json:"department"`
	Active     bool                     `json:"active"`
	Executor   *ExecutorProfileResponse `json:"executor,omitempty"`
	CreatedAt  string                   `json:"created_at" format:"date-time"`
}

type QueueEntryResponse struct {
	TicketID     string `json:"ticket_id"`
	Stage        string `json:"stage" enum:"pending,assigned"`
	Department   string `json:"department"`
	ExecutorType string `json:"executor_type"`
	Position     int    `json:"position"`
	Total        int    `json:"total"`
	Ahead        int    `json:"ahead"`
	Urgency      string `json:"urgency" enum:"normal,urgent,express"`
}

type QueueTicketResponse struct {
	Request RequestResponse    `json:"request"`
	Entry   QueueEntryResponse `json:"entry"`
}

type UserQueueResponse struct {
	AsRequester []QueueTicketResponse `json:"as_requester"`
	AsExecutor  []QueueTicketResponse `json:"as_executor"`
}

type ScopedQueueResponse struct {
	Department   string                `json:"department,omitempty"`
	ExecutorType string                `json:"executor_type,omitempty"`
	Stage        string                `json:"stage,omitempty"`
	Page         int                   `json:"page"`
	Limit        int                   `json:"limit"`
	Total        int                   `json:"total"`
	Pages        int                   `json:"pages"`
	Items        []QueueTicketResponse `json:"items"`
}

type DepartmentResponse struct {
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type WhoAmIResponse struct {
	ActorID    string `json:"actor_id"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
	Source     string `json:"source"`
}

type paginatedRequests struct {
	Items []RequestResponse `json:"items"`
	Total int               `json:"total"`
	Page  int               `json:"page"`
	Pages int               `json:"pages"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor int64           `json:"next_cursor,omitempty"`
}

// Conversion helpers

func requestResponse(r domain.Request) RequestResponse {
	return RequestResponse(r)
}

func mapRequests(items []domain.Request) []RequestResponse {
	res := make([]RequestResponse, 0, len(items))
	for _, r := range items {
		res = append(res, requestResponse(r))
	}
	return res
}

func commentResponse(c domain.Comment) CommentResponse {
	return CommentResponse(c)
}

func mapComments(items []domain.Comment) []CommentResponse {
	res := make([]CommentResponse, 0, len(items))
	for _, c := range items {
		res = append(res, commentResponse(c))
	}
	return res
}

func userResponse(u domain.User) UserResponse {
	resp := UserResponse{
		ID:         u.ID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Role:       u.Role,
		Department: u.Department,
		Active:     u.Active,
		CreatedAt:  u.CreatedAt,
	}
	if u.Executor != nil {
		resp.Executor = &ExecutorProfileResponse{
			Capacity:          u.Executor.Capacity,
			Priority:          u.Executor.Priority,
			Available:         u.Executor.Available,
			UnavailableReason: u.Executor.UnavailableReason,
			UnavailableUntil:  u.Executor.UnavailableUntil,
			AllowedTypes:      nonNilSlice(u.Executor.AllowedTypes),
			Specialties:       u.Executor.Specialties,
			Stats:             ExecutorStatsResponse(u.Executor.Stats),
		}
	}
	return resp
}

func mapUsers(items []domain.User) []UserResponse {
	res := make([]UserResponse, 0, len(items))
	for _, u := range items {
		res = append(res, userResponse(u))
	}
	return res
}

func entryResponse(e queue.Entry) QueueEntryResponse {
	return QueueEntryResponse{
		TicketID:     e.TicketID,
		Stage:        e.Stage,
		Department:   e.Scope.Department,
		ExecutorType: e.Scope.ExecutorType,
		Position:     e.Position,
		Total:        e.Total,
		Ahead:        e.Ahead,
		Urgency:      e.Urgency,
	}
}

func ticketResponse(t engine.QueueTicket) QueueTicketResponse {
	return QueueTicketResponse{
		Request: requestResponse(t.Request),
		Entry:   entryResponse(t.Entry),
	}
}

func mapTickets(items []engine.QueueTicket) []QueueTicketResponse {
	res := make([]QueueTicketResponse, 0, len(items))
	for _, t := range items {
		res = append(res, ticketResponse(t))
	}
	return res
}

func eventResponse(evt domain.Event) EventResponse {
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    decodeJSONMap(evt.Payload),
	}
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, evt := range items {
		res = append(res, eventResponse(evt))
	}
	return res
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{}
	}
	return m
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
