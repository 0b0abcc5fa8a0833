package access

import (
	"slices"

	"github.com/reelnotes/backend/internal/models"
)

// Role is an actor's standing on a project.
type Role string

const (
	RoleOwner        Role = "owner"
	RoleCollaborator Role = "collaborator"
	RoleNone         Role = "none"
)

// Classify decides the actor's role from the given project snapshot. Callers
// authorising a mutation must pass a snapshot read for that request.
func Classify(userID string, project models.Project) Role {
	if userID == "" {
		return RoleNone
	}
	if !models.IsAnonymous(userID) && userID == project.OwnerID {
		return RoleOwner
	}
	if slices.Contains(project.Collaborators, userID) {
		return RoleCollaborator
	}
	return RoleNone
}

// HasAccess reports whether the role may view and comment.
func (r Role) HasAccess() bool {
	return r == RoleOwner || r == RoleCollaborator
}

// CanManage reports whether the role may change the roster, link or project.
func (r Role) CanManage() bool {
	return r == RoleOwner
}
