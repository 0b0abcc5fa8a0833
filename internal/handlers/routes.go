package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reelnotes/backend/internal/apperr"
	"github.com/reelnotes/backend/internal/middleware"
	"github.com/reelnotes/backend/internal/projects"
	"github.com/reelnotes/backend/internal/storage"
	"github.com/reelnotes/backend/internal/timeline"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Logger        *slog.Logger
	Authenticator middleware.ActorResolver
	Users         UserStore
	Sessions      SessionManager
	Projects      *projects.Service
	Timeline      *timeline.Service
	// Assets is nil when no object store is configured; file routes are then absent.
	Assets         *storage.Assets
	MaxUploadBytes int64
	Limiter        RateLimiter
	Database       Pinger
}

// NewRouter wires HTTP handlers and middleware into a chi router.
func NewRouter(deps Dependencies) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	if deps.Authenticator != nil {
		r.Use(middleware.Authenticate(deps.Authenticator))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondKind(r.Context(), w, apperr.NotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(r.Context(), w, http.StatusMethodNotAllowed, errorBody{Error: errorDetail{
			Status:  apperr.InvalidArgument,
			Message: "method not allowed",
		}})
	})

	health := HealthHandler{Database: deps.Database}
	authH := AuthHandler{Users: deps.Users, Sessions: deps.Sessions}
	projectH := ProjectHandler{Projects: deps.Projects}
	sharedH := SharedHandler{Projects: deps.Projects}
	commentH := CommentHandler{Timeline: deps.Timeline}
	rpcH := RPCHandler{Projects: deps.Projects}

	r.Get("/healthz", health.Handle)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", rateLimited(deps.Limiter, "signup", authH.SignUp))
			r.Post("/login", rateLimited(deps.Limiter, "login", authH.Login))
			r.Post("/anonymous", rateLimited(deps.Limiter, "anonymous", authH.Anonymous))
			r.Post("/refresh", rateLimited(deps.Limiter, "refresh", authH.Refresh))
			r.Post("/logout", authH.Logout)
			r.Get("/me", authH.Me)
			r.Patch("/me", authH.UpdateMe)
		})

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", projectH.List)
			r.Post("/", projectH.Create)

			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", projectH.Get)
				r.Delete("/", projectH.Delete)
				r.Post("/collaborators", projectH.AddCollaborator)
				r.Delete("/collaborators/{userID}", projectH.RemoveCollaborator)
				r.Post("/shareable-link", projectH.RegenerateLink)

				commentRoutes(r, commentH, nil)

				if deps.Assets != nil {
					assetH := AssetHandler{Projects: deps.Projects, Assets: deps.Assets, MaxUploadBytes: deps.MaxUploadBytes}
					r.Get("/videos", assetH.ListVideos)
					r.Post("/videos", assetH.UploadVideo)
					r.Get("/videos/{fileName}", assetH.VideoURL)
					r.Delete("/videos/{fileName}", assetH.DeleteVideo)
					r.Post("/thumbnails", assetH.UploadThumbnail)
					r.Get("/thumbnails/{fileName}", assetH.ThumbnailURL)
				}
			})
		})

		r.Route("/shared/{token}", func(r chi.Router) {
			r.Get("/", sharedH.Get)
			commentRoutes(r, commentH, deps.Limiter)
		})

		r.Route("/rpc", func(r chi.Router) {
			r.Post("/generateShareableLink", rpcH.GenerateShareableLink)
			r.Post("/checkAccess", rpcH.CheckAccess)
			r.Post("/updateCollaborators", rpcH.UpdateCollaborators)
		})
	})

	return r
}

// commentRoutes mounts the timeline under either scope. Posting through a
// shared link is rate limited when limiter is set.
func commentRoutes(r chi.Router, h CommentHandler, limiter RateLimiter) {
	r.Route("/comments", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", rateLimited(limiter, "comment", h.Create))
		r.Get("/stream", h.Stream)
		r.Patch("/{commentID}", h.Update)
		r.Delete("/{commentID}", h.Delete)
		r.Post("/{commentID}/annotations", h.AddAnnotation)
		r.Delete("/{commentID}/annotations/{index}", h.RemoveAnnotation)
	})
}
