package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reelnotes/backend/internal/access"
	"github.com/reelnotes/backend/internal/apperr"
	"github.com/reelnotes/backend/internal/auth"
	"github.com/reelnotes/backend/internal/logging"
	"github.com/reelnotes/backend/internal/models"
	"github.com/reelnotes/backend/internal/projects"
	"github.com/reelnotes/backend/internal/storage"
)

const defaultMaxUploadBytes = 2 << 30

// AssetHandler serves project video and thumbnail files. Members may read;
// only the owner may upload or delete.
type AssetHandler struct {
	Projects *projects.Service
	Assets   *storage.Assets
	// MaxUploadBytes caps a single upload. Zero means 2 GiB.
	MaxUploadBytes int64
}

// UploadVideo handles multipart POST /api/v1/projects/{projectID}/videos.
func (h AssetHandler) UploadVideo(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, h.Assets.UploadVideo)
}

// UploadThumbnail handles multipart POST /api/v1/projects/{projectID}/thumbnails.
func (h AssetHandler) UploadThumbnail(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, h.Assets.UploadThumbnail)
}

// ListVideos handles GET /api/v1/projects/{projectID}/videos.
func (h AssetHandler) ListVideos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project, err := h.project(ctx, r, false)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	videos, err := h.Assets.ListVideos(ctx, project.ID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, videosResponse{Videos: videos})
}

// VideoURL handles GET /api/v1/projects/{projectID}/videos/{fileName}.
func (h AssetHandler) VideoURL(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, h.Assets.VideoURL)
}

// ThumbnailURL handles GET /api/v1/projects/{projectID}/thumbnails/{fileName}.
func (h AssetHandler) ThumbnailURL(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, h.Assets.ThumbnailURL)
}

// DeleteVideo handles DELETE /api/v1/projects/{projectID}/videos/{fileName}.
func (h AssetHandler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project, err := h.project(ctx, r, true)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.Assets.DeleteVideo(ctx, project.ID, chi.URLParam(r, "fileName")); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type uploadFunc func(ctx context.Context, projectID string, upload storage.Upload) (storage.Asset, error)

type urlFunc func(ctx context.Context, projectID, fileName string) (string, error)

func (h AssetHandler) upload(w http.ResponseWriter, r *http.Request, store uploadFunc) {
	ctx := r.Context()
	project, err := h.project(ctx, r, true)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	part, err := filePart(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	defer part.Close()

	asset, err := store(ctx, project.ID, storage.Upload{
		FileName:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Body:        part,
	})
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondKind(ctx, w, apperr.InvalidArgument, "file is too large")
			return
		}
		respondError(ctx, w, err)
		return
	}

	logging.FromContext(ctx).Info("asset uploaded", "project_id", project.ID, "path", asset.Path, "bytes", asset.Size)
	respondJSON(ctx, w, http.StatusCreated, asset)
}

func (h AssetHandler) download(w http.ResponseWriter, r *http.Request, presign urlFunc) {
	ctx := r.Context()
	project, err := h.project(ctx, r, false)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	url, err := presign(ctx, project.ID, chi.URLParam(r, "fileName"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, urlResponse{URL: url})
}

// project loads the addressed project for a member, or for the owner only
// when manage is set.
func (h AssetHandler) project(ctx context.Context, r *http.Request, manage bool) (models.Project, error) {
	actor := auth.ActorFromContext(ctx)
	project, err := h.Projects.Get(ctx, actor, chi.URLParam(r, "projectID"))
	if err != nil {
		return models.Project{}, err
	}
	if manage && !access.Classify(actor.UserID, project).CanManage() {
		return models.Project{}, apperr.New(apperr.PermissionDenied, "only the project owner can manage files")
	}
	return project, nil
}

// filePart streams the "file" field of a multipart body without buffering it.
func filePart(r *http.Request) (*multipart.Part, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidArgument, "expected a multipart upload", err)
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, apperr.New(apperr.InvalidArgument, "file is required")
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidArgument, "malformed multipart upload", err)
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

type videosResponse struct {
	Videos []storage.Asset `json:"videos"`
}

type urlResponse struct {
	URL string `json:"url"`
}
