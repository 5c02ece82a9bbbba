// Package assign selects the best available executor for a request.
// It is a pure computation over a point-in-time roster snapshot: it does
// not persist anything and does not retry. Callers embedding it in a
// concurrent environment must serialize the capacity check-then-assign
// sequence per executor.
package assign

import (
	"errors"
	"fmt"
	"sort"

	"reqline/internal/domain"
)

// Candidate is an executor snapshot with its load already derived from
// the live request set.
type Candidate struct {
	ID           string
	Role         string
	Priority     int
	Capacity     int
	Available    bool
	AllowedTypes []string
	CurrentLoad  int
}

// FreeSlots returns the remaining simultaneous-request budget.
func (c Candidate) FreeSlots() int {
	return c.Capacity - c.CurrentLoad
}

// CanExecuteType reports whether the candidate's allowed design types
// cover the request type. The wildcard entry covers everything.
func (c Candidate) CanExecuteType(designType string) bool {
	for _, t := range c.AllowedTypes {
		if t == domain.DesignTypeAll || t == designType {
			return true
		}
	}
	return false
}

// Eligible applies the full eligibility predicate: availability, free
// capacity, design-type coverage, and the request's preferred role when
// one is set.
func Eligible(c Candidate, req domain.Request) bool {
	if !c.Available {
		return false
	}
	if c.CurrentLoad >= c.Capacity {
		return false
	}
	if !c.CanExecuteType(req.Type) {
		return false
	}
	if req.PreferredRole != "" && c.Role != req.PreferredRole {
		return false
	}
	return true
}

var (
	// ErrNilRequest and ErrNilRoster are fatal input conditions; an empty
	// (but non-nil) roster is a normal "unassigned" outcome instead.
	ErrNilRequest = errors.New("request is required")
	ErrNilRoster  = errors.New("executor roster is required")
)

// Select returns the executor that should receive the request, or nil
// when no eligible executor exists. A nil result with a nil error means
// the request stays pending; only malformed input produces an error.
//
// Selection is deterministic: express requests go to the highest-ranked
// tier (lowest priority number), everything else to the lowest relative
// load. Ties break on current load, then executor id.
func Select(req *domain.Request, roster []Candidate) (*Candidate, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if roster == nil {
		return nil, ErrNilRoster
	}
	for _, c := range roster {
		if c.Capacity <= 0 {
			return nil, fmt.Errorf("executor %s has non-positive capacity %d", c.ID, c.Capacity)
		}
	}

	var pool []Candidate
	for _, c := range roster {
		if Eligible(c, *req) {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return nil, nil
	}

	if req.Urgency == domain.UrgencyExpress {
		sort.Slice(pool, func(i, j int) bool {
			a, b := pool[i], pool[j]
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
			if a.CurrentLoad != b.CurrentLoad {
				return a.CurrentLoad < b.CurrentLoad
			}
			return a.ID < b.ID
		})
	} else {
		sort.Slice(pool, func(i, j int) bool {
			a, b := pool[i], pool[j]
			// load/capacity comparison without floating point:
			// a.load/a.cap < b.load/b.cap  <=>  a.load*b.cap < b.load*a.cap
			la, lb := a.CurrentLoad*b.Capacity, b.CurrentLoad*a.Capacity
			if la != lb {
				return la < lb
			}
			if a.CurrentLoad != b.CurrentLoad {
				return a.CurrentLoad < b.CurrentLoad
			}
			return a.ID < b.ID
		})
	}
	chosen := pool[0]
	return &chosen, nil
}
