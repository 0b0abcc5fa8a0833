package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/reelnotes/backend/internal/apperr"
	"github.com/reelnotes/backend/internal/auth"
	"github.com/reelnotes/backend/internal/models"
	"github.com/reelnotes/backend/internal/timeline"
)

// CommentHandler serves project timelines, addressed either by project id
// (members only) or by shareable link.
type CommentHandler struct {
	Timeline *timeline.Service
}

// List handles GET .../comments. ?start=&end= narrows to a playback range
// (inclusive) and ?user= to one commenter.
func (h CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := auth.ActorFromContext(ctx)
	scope := scopeFrom(r)

	filter, err := filterFrom(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	var comments []models.Comment
	switch {
	case filter.From != nil && filter.To != nil && filter.CommenterID == "":
		comments, err = h.Timeline.ListByRange(ctx, actor, scope, *filter.From, *filter.To)
	case filter.From == nil && filter.To == nil && filter.CommenterID != "":
		comments, err = h.Timeline.ListByUser(ctx, actor, scope, filter.CommenterID)
	case filter == (models.CommentFilter{}):
		comments, err = h.Timeline.List(ctx, actor, scope)
	default:
		comments, err = h.Timeline.Query(ctx, actor, scope, filter)
	}
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, commentsResponse{Comments: comments})
}

// Create handles POST .../comments.
func (h CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	if req.Timestamp == nil {
		respondKind(ctx, w, apperr.InvalidArgument, "timestamp is required")
		return
	}

	comment, err := h.Timeline.Create(ctx, auth.ActorFromContext(ctx), scopeFrom(r), timeline.NewComment{
		Timestamp:   *req.Timestamp,
		Text:        req.Text,
		Annotations: req.Annotations,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, comment)
}

// Update handles PATCH .../comments/{commentID}.
func (h CommentHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	comment, err := h.Timeline.Update(ctx, auth.ActorFromContext(ctx), scopeFrom(r), chi.URLParam(r, "commentID"), models.CommentPatch{
		Text:      req.Text,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, comment)
}

// Delete handles DELETE .../comments/{commentID}.
func (h CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.Timeline.Delete(ctx, auth.ActorFromContext(ctx), scopeFrom(r), chi.URLParam(r, "commentID")); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddAnnotation handles POST .../comments/{commentID}/annotations.
func (h CommentHandler) AddAnnotation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var annotation models.Annotation
	if err := decodeJSON(w, r, &annotation); err != nil {
		respondError(ctx, w, err)
		return
	}

	list, err := h.Timeline.AddAnnotation(ctx, auth.ActorFromContext(ctx), scopeFrom(r), chi.URLParam(r, "commentID"), annotation)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, annotationsResponse{Annotations: list})
}

// RemoveAnnotation handles DELETE .../comments/{commentID}/annotations/{index}.
func (h CommentHandler) RemoveAnnotation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondKind(ctx, w, apperr.InvalidArgument, "annotation index must be an integer")
		return
	}

	list, err := h.Timeline.RemoveAnnotation(ctx, auth.ActorFromContext(ctx), scopeFrom(r), chi.URLParam(r, "commentID"), index)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, annotationsResponse{Annotations: list})
}

func scopeFrom(r *http.Request) timeline.Scope {
	if token := chi.URLParam(r, "token"); token != "" {
		return timeline.Scope{ShareToken: token}
	}
	return timeline.Scope{ProjectID: chi.URLParam(r, "projectID")}
}

func filterFrom(r *http.Request) (models.CommentFilter, error) {
	query := r.URL.Query()
	filter := models.CommentFilter{CommenterID: strings.TrimSpace(query.Get("user"))}

	for name, dst := range map[string]**float64{"start": &filter.From, "end": &filter.To} {
		raw := strings.TrimSpace(query.Get(name))
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.CommentFilter{}, apperr.New(apperr.InvalidArgument, name+" must be a number of seconds")
		}
		*dst = &value
	}
	return filter, nil
}

type createCommentRequest struct {
	Timestamp   *float64            `json:"timestamp"`
	Text        string              `json:"text"`
	Annotations []models.Annotation `json:"annotations"`
}

type updateCommentRequest struct {
	Text      *string  `json:"text"`
	Timestamp *float64 `json:"timestamp"`
}

type commentsResponse struct {
	Comments []models.Comment `json:"comments"`
}

type annotationsResponse struct {
	Annotations []models.Annotation `json:"annotations"`
}
