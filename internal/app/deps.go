package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/reelnotes/backend/internal/auth"
	"github.com/reelnotes/backend/internal/config"
	"github.com/reelnotes/backend/internal/db"
	"github.com/reelnotes/backend/internal/handlers"
	"github.com/reelnotes/backend/internal/logging"
	"github.com/reelnotes/backend/internal/middleware"
	"github.com/reelnotes/backend/internal/projects"
	"github.com/reelnotes/backend/internal/repositories"
	"github.com/reelnotes/backend/internal/storage"
	"github.com/reelnotes/backend/internal/timeline"
	"github.com/reelnotes/backend/internal/videos"
)

// cleanupFunc releases background workers started by buildDependencies.
type cleanupFunc func(ctx context.Context) error

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, cleanupFunc, error) {
	if logger == nil {
		logger = slog.Default()
	}

	users := repositories.NewPostgresUserRepository(pool)
	sessions := auth.NewManager(cfg.AccessTokenTTL, cfg.RefreshTokenTTL, newSessionStore(pool, cfg, logger))
	projectRepo := repositories.NewPostgresProjectRepository(pool)
	commentRepo := repositories.NewPostgresCommentRepository(pool)
	transactional := cfg.WriteMode == config.WriteModeTransactional

	broker := timeline.NewBroker()
	var publisher projects.ChangePublisher = broker

	listenCtx, stopListening := context.WithCancel(context.Background())
	listenDone := make(chan struct{})
	if cfg.ChangeFeed == config.ChangeFeedPostgres {
		feed := repositories.NewPostgresChangeFeed(pool, cfg.ChangeChannel)
		publisher = feed
		go func() {
			defer close(listenDone)
			err := feed.Listen(logging.WithLogger(listenCtx, logger), broker)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("change feed stopped", "error", err)
			}
		}()
	} else {
		close(listenDone)
	}

	var assets *storage.Assets
	if strings.TrimSpace(cfg.ObjectStore.Bucket) != "" {
		blobs, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			stopListening()
			return handlers.Dependencies{}, nil, err
		}
		assets = storage.NewAssets(blobs)
	}

	ytDlp := videos.NewYTDLPProvider(cfg.YTDLPPath, cfg.YTDLPTimeout)
	metadataProvider := videos.NewCachingProvider(ytDlp, cfg.MetadataCacheTTL)
	enricher := videos.NewMetadataEnricher(metadataProvider, projectRepo, videos.EnricherConfig{
		QueueSize: cfg.MetadataQueue,
		Workers:   cfg.MetadataWorkers,
		Skip:      ownUpload(cfg.ObjectStore),
	}, logger)

	projectOpts := projects.Options{
		Publisher:     publisher,
		Metadata:      enricher,
		Transactional: transactional,
	}
	if assets != nil {
		projectOpts.Assets = assets
	}
	projectSvc := projects.NewService(projectRepo, projectOpts)
	timelineSvc := timeline.NewService(commentRepo, projectRepo, broker, timeline.Options{
		Publisher:     publisher,
		Transactional: transactional,
	})

	deps := handlers.Dependencies{
		Logger:         logger,
		Authenticator:  sessions,
		Users:          users,
		Sessions:       sessions,
		Projects:       projectSvc,
		Timeline:       timelineSvc,
		Assets:         assets,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		Limiter:        middleware.NewIPRateLimiter(cfg.RateLimit),
		Database:       db.Pinger{Pool: pool},
	}

	cleanup := func(ctx context.Context) error {
		stopListening()
		err := enricher.Shutdown(ctx)
		select {
		case <-listenDone:
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		}
		return err
	}

	return deps, cleanup, nil
}

// ownUpload reports video URLs served from our bucket, which need no lookup.
func ownUpload(cfg config.ObjectStoreConfig) func(string) bool {
	prefixes := []string{}
	for _, base := range []string{cfg.PublicBaseURL, cfg.Endpoint} {
		if base = strings.TrimSuffix(strings.TrimSpace(base), "/"); base != "" {
			prefixes = append(prefixes, base+"/")
		}
	}
	return func(videoURL string) bool {
		for _, prefix := range prefixes {
			if strings.HasPrefix(videoURL, prefix) {
				return true
			}
		}
		return false
	}
}

// newSessionStore picks where issued token pairs live. The memory store loses
// every session on restart and is meant for single-process local runs.
func newSessionStore(pool db.Pool, cfg config.Config, logger *slog.Logger) auth.SessionStore {
	if cfg.SessionStore == config.SessionStoreMemory {
		logger.Warn("sessions are kept in memory and will not survive a restart")
		return auth.NewInMemorySessionStore()
	}
	return repositories.NewPostgresSessionStore(pool)
}
