package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reelnotes/backend/internal/auth"
	"github.com/reelnotes/backend/internal/projects"
)

// ProjectHandler exposes project, roster and link management.
type ProjectHandler struct {
	Projects *projects.Service
}

// List handles GET /api/v1/projects.
func (h ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dashboard, err := h.Projects.List(ctx, auth.ActorFromContext(ctx))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, dashboard)
}

// Create handles POST /api/v1/projects.
func (h ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	project, err := h.Projects.Create(ctx, auth.ActorFromContext(ctx), projects.CreateRequest{
		Title:         req.Title,
		VideoURL:      req.VideoURL,
		ShareableLink: req.ShareableLink,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, project)
}

// Get handles GET /api/v1/projects/{projectID}.
func (h ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project, err := h.Projects.Get(ctx, auth.ActorFromContext(ctx), chi.URLParam(r, "projectID"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, project)
}

// Delete handles DELETE /api/v1/projects/{projectID}.
func (h ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Projects.Delete(ctx, auth.ActorFromContext(ctx), chi.URLParam(r, "projectID")); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddCollaborator handles POST /api/v1/projects/{projectID}/collaborators.
func (h ProjectHandler) AddCollaborator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req collaboratorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	roster, err := h.Projects.AddCollaborator(ctx, auth.ActorFromContext(ctx), chi.URLParam(r, "projectID"), req.UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, rosterResponse{Collaborators: roster})
}

// RemoveCollaborator handles DELETE /api/v1/projects/{projectID}/collaborators/{userID}.
func (h ProjectHandler) RemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roster, err := h.Projects.RemoveCollaborator(ctx, auth.ActorFromContext(ctx), chi.URLParam(r, "projectID"), chi.URLParam(r, "userID"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, rosterResponse{Collaborators: roster})
}

// RegenerateLink handles POST /api/v1/projects/{projectID}/shareable-link.
// The previous link stops resolving.
func (h ProjectHandler) RegenerateLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, err := h.Projects.RegenerateShareableLink(ctx, auth.ActorFromContext(ctx), chi.URLParam(r, "projectID"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, linkResponse{ShareableLink: token})
}

// SharedHandler resolves shareable links. No sign-in is needed.
type SharedHandler struct {
	Projects *projects.Service
}

// Get handles GET /api/v1/shared/{token}.
func (h SharedHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project, err := h.Projects.ResolveShareableLink(ctx, chi.URLParam(r, "token"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, project)
}

type createProjectRequest struct {
	Title         string `json:"title"`
	VideoURL      string `json:"videoUrl"`
	ShareableLink string `json:"shareableLink"`
}

type collaboratorRequest struct {
	UserID string `json:"userId"`
}

type rosterResponse struct {
	Collaborators []string `json:"collaborators"`
}

type linkResponse struct {
	ShareableLink string `json:"shareableLink"`
}
