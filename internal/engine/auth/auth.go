// Package auth holds the visibility rules for queue and request reads.
package auth

import (
	"fmt"

	"reqline/internal/domain"
)

// ForbiddenError indicates the principal may not perform the action.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("action %s not allowed", e.Action)
}

// IsAdmin reports whether the role grants the unfiltered scoped views.
func IsAdmin(role string) bool {
	return role == domain.RoleAdmin
}

// CanViewTicket reports whether the user may read a request's queue
// entry: admins always, otherwise only the requester or the assignee.
func CanViewTicket(userID, role string, req domain.Request) bool {
	if IsAdmin(role) {
		return true
	}
	if req.RequesterID == userID {
		return true
	}
	if req.AssignedTo != nil && *req.AssignedTo == userID {
		return true
	}
	return false
}

// CanTransition reports whether the user may change a request's status.
// Admins and the assigned executor may advance it; the requester may
// only reject their own pending ticket.
func CanTransition(userID, role string, req domain.Request, newStatus string) bool {
	if IsAdmin(role) {
		return true
	}
	if req.AssignedTo != nil && *req.AssignedTo == userID {
		return true
	}
	if req.RequesterID == userID && req.Status == domain.StatusPending && newStatus == domain.StatusRejected {
		return true
	}
	return false
}
