package handlers

import (
	"net/http"

	"github.com/reelnotes/backend/internal/access"
	"github.com/reelnotes/backend/internal/apperr"
	"github.com/reelnotes/backend/internal/auth"
	"github.com/reelnotes/backend/internal/projects"
)

// RPCHandler serves the callable procedures under /api/v1/rpc. Every check
// runs server side; clients are never trusted to enforce ownership.
type RPCHandler struct {
	Projects *projects.Service
}

// GenerateShareableLink issues a fresh link for a project the caller owns.
func (h RPCHandler) GenerateShareableLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req rpcProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	actor := auth.ActorFromContext(ctx)
	if !actor.Authenticated() {
		respondKind(ctx, w, apperr.Unauthenticated, "sign in to share projects")
		return
	}
	if req.ProjectID == "" {
		respondKind(ctx, w, apperr.InvalidArgument, "projectId is required")
		return
	}

	token, err := h.Projects.RegenerateShareableLink(ctx, actor, req.ProjectID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, linkResponse{ShareableLink: token})
}

// CheckAccess reports how userId relates to a project. The caller's own
// identity is used when userId is omitted.
func (h RPCHandler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req rpcAccessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	if req.ProjectID == "" {
		respondKind(ctx, w, apperr.InvalidArgument, "projectId is required")
		return
	}
	if req.UserID == "" {
		req.UserID = auth.ActorFromContext(ctx).UserID
	}

	role, err := h.Projects.CheckAccess(ctx, req.ProjectID, req.UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, accessResponse{Role: role, HasAccess: role.HasAccess()})
}

// UpdateCollaborators applies an add or remove action to a project roster.
func (h RPCHandler) UpdateCollaborators(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req rpcRosterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	roster, err := h.Projects.UpdateCollaborators(ctx, auth.ActorFromContext(ctx), projects.RosterChange{
		ProjectID: req.ProjectID,
		UserID:    req.UserID,
		Action:    req.Action,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, rosterResponse{Collaborators: roster})
}

type rpcProjectRequest struct {
	ProjectID string `json:"projectId"`
}

type rpcAccessRequest struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
}

type rpcRosterRequest struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
	Action    string `json:"action"`
}

type accessResponse struct {
	Role      access.Role `json:"role"`
	HasAccess bool        `json:"hasAccess"`
}
