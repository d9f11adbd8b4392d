// Package access decides which operations an actor may perform on a task.
// Decisions are pure functions of the actor's role/id and the task's
// creator/assignee fields; the policy has no side effects and leaks no task
// data on denial.
package access

import (
	"fmt"

	"taskledger/internal/domain"
)

// ForbiddenError indicates the actor is not allowed to perform an operation.
type ForbiddenError struct {
	Op string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("operation %s forbidden", e.Op)
}

// Policy evaluates permissions for a single actor. Build it once per
// operation with For and reuse it for every check in that operation.
type Policy struct {
	actor domain.User
}

func For(actor domain.User) Policy {
	return Policy{actor: actor}
}

// CanAdminister reports whether the actor may create, patch, soft-delete,
// and assign tasks. Only admins may.
func (p Policy) CanAdminister() bool {
	return p.actor.Role == domain.RoleAdmin
}

// CanAccess reports whether the actor may read, comment on, manage subtasks
// of, and change the status of the task. Admins always may; customers only
// when they created the task or are its assignee.
func (p Policy) CanAccess(t domain.Task) bool {
	if p.actor.Role == domain.RoleAdmin {
		return true
	}
	if t.CreatedBy == p.actor.ID {
		return true
	}
	return t.AssigneeID != nil && *t.AssigneeID == p.actor.ID
}

func (p Policy) RequireAdmin(op string) error {
	if !p.CanAdminister() {
		return ForbiddenError{Op: op}
	}
	return nil
}

func (p Policy) RequireAccess(t domain.Task, op string) error {
	if !p.CanAccess(t) {
		return ForbiddenError{Op: op}
	}
	return nil
}
