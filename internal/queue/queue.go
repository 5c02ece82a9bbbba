// Package queue computes a deterministic, strictly-ordered position for
// every active request within its scope group. Ranking is a pure
// read-and-sort over the request set; persisted queue positions are
// best-effort caches, never sources of truth.
package queue

import (
	"sort"
	"strings"
	"time"

	"reqline/internal/domain"
)

// Stages of a queue entry. Assigned and pending requests never share a
// group.
const (
	StagePending  = "pending"
	StageAssigned = "assigned"
)

// DefaultArea buckets requests with a missing department so ranking
// stays total over malformed input.
const DefaultArea = "Sin área"

// Scope identifies a ranking group together with the stage.
type Scope struct {
	Department   string `json:"department"`
	ExecutorType string `json:"executor_type"`
}

// Entry is the derived queue position of one active request.
type Entry struct {
	TicketID  string `json:"ticket_id"`
	Stage     string `json:"stage" enum:"pending,assigned"`
	Scope     Scope  `json:"scope"`
	Position  int    `json:"position"`
	Total     int    `json:"total"`
	Ahead     int    `json:"ahead"`
	Urgency   string `json:"urgency"`
	Timestamp string `json:"timestamp,omitempty" format:"date-time"`
}

// Stage returns the queue stage for a request: assigned once it has an
// executor, pending otherwise.
func Stage(r domain.Request) string {
	if r.AssignedTo != nil && *r.AssignedTo != "" {
		return StageAssigned
	}
	return StagePending
}

// NormalizeExecutorType resolves aliases and falls back to the most
// general executor type for unrecognized values.
func NormalizeExecutorType(value string) string {
	aliases := map[string]string{
		"manager":   domain.RoleGerente,
		"designer":  domain.RoleDisenador,
		"disenador": domain.RoleDisenador,
	}
	normalized := strings.ToLower(strings.TrimSpace(value))
	if resolved, ok := aliases[normalized]; ok {
		normalized = resolved
	}
	switch normalized {
	case domain.RoleGerente, domain.RoleDisenador, domain.RolePracticante:
		return normalized
	}
	return domain.RoleDisenador
}

// NormalizeArea maps a missing department to the default bucket.
func NormalizeArea(value string) string {
	area := strings.TrimSpace(value)
	if area == "" {
		return DefaultArea
	}
	return area
}

// ScopeOf returns the normalized ranking scope for a request.
func ScopeOf(r domain.Request) Scope {
	return Scope{
		Department:   NormalizeArea(r.Area),
		ExecutorType: NormalizeExecutorType(r.PreferredRole),
	}
}

// timestampOf picks the ordering timestamp for the request's stage:
// queuedAt for pending (createdAt fallback), assignedAt for assigned
// (updatedAt, then createdAt fallback).
func timestampOf(r domain.Request) string {
	if Stage(r) == StageAssigned {
		if r.AssignedAt != nil && *r.AssignedAt != "" {
			return *r.AssignedAt
		}
		if r.UpdatedAt != "" {
			return r.UpdatedAt
		}
		return r.CreatedAt
	}
	if r.QueuedAt != "" {
		return r.QueuedAt
	}
	return r.CreatedAt
}

func parseTS(v string) int64 {
	if v == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return 0
	}
	return t.UnixNano()
}

// Less is the within-group comparator: urgency weight descending, stage
// timestamp ascending, createdAt ascending, then request id. The id
// tiebreak guarantees a strict total order even with identical
// timestamps.
func Less(a, b domain.Request) bool {
	wa, wb := domain.UrgencyWeight(a.Urgency), domain.UrgencyWeight(b.Urgency)
	if wa != wb {
		return wa > wb
	}
	ta, tb := parseTS(timestampOf(a)), parseTS(timestampOf(b))
	if ta != tb {
		return ta < tb
	}
	ca, cb := parseTS(a.CreatedAt), parseTS(b.CreatedAt)
	if ca != cb {
		return ca < cb
	}
	return a.ID < b.ID
}

func groupKey(r domain.Request) string {
	s := ScopeOf(r)
	return Stage(r) + "|" + s.Department + "|" + s.ExecutorType
}

// Rank partitions the active requests into (stage, department,
// executor-type) groups and returns a 1-based position for each request
// within its group. Terminal requests in the input are ignored; an empty
// or all-terminal set yields an empty map.
func Rank(requests []domain.Request) map[string]Entry {
	grouped := make(map[string][]domain.Request)
	for _, r := range requests {
		if r.ID == "" || !domain.IsActiveStatus(r.Status) {
			continue
		}
		key := groupKey(r)
		grouped[key] = append(grouped[key], r)
	}

	index := make(map[string]Entry, len(requests))
	for _, group := range grouped {
		ordered := append([]domain.Request(nil), group...)
		sort.Slice(ordered, func(i, j int) bool { return Less(ordered[i], ordered[j]) })
		total := len(ordered)
		for i, r := range ordered {
			urgency := r.Urgency
			if urgency == "" {
				urgency = domain.UrgencyNormal
			}
			index[r.ID] = Entry{
				TicketID:  r.ID,
				Stage:     Stage(r),
				Scope:     ScopeOf(r),
				Position:  i + 1,
				Total:     total,
				Ahead:     i,
				Urgency:   urgency,
				Timestamp: timestampOf(r),
			}
		}
	}
	return index
}

// For returns the entry for a single request, or nil when the request is
// not currently active. This is a normal outcome, not an error.
func For(r domain.Request, all []domain.Request) *Entry {
	if r.ID == "" || !domain.IsActiveStatus(r.Status) {
		return nil
	}
	index := Rank(all)
	entry, ok := index[r.ID]
	if !ok {
		return nil
	}
	return &entry
}

// LessEntries orders entries for the scoped admin view: stage, then
// scope, then position.
func LessEntries(a, b Entry) bool {
	if a.Stage != b.Stage {
		return a.Stage < b.Stage
	}
	sa := a.Scope.Department + "|" + a.Scope.ExecutorType
	sb := b.Scope.Department + "|" + b.Scope.ExecutorType
	if sa != sb {
		return sa < sb
	}
	return a.Position < b.Position
}
