package videos

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reelnotes/backend/internal/models"
)

// MetadataUpdater persists enrichment for a project.
type MetadataUpdater interface {
	SetVideoMetadata(ctx context.Context, projectID string, meta models.VideoMetadata) error
}

// EnricherConfig controls the concurrency characteristics of the enricher.
type EnricherConfig struct {
	QueueSize int
	Workers   int
	// Skip reports video URLs that need no lookup, such as our own uploads.
	Skip func(videoURL string) bool
}

// MetadataEnricher fills in thumbnail and duration for linked videos on a
// bounded background worker pool.
type MetadataEnricher struct {
	provider Provider
	updater  MetadataUpdater
	skip     func(string) bool
	timeout  time.Duration
	logger   *slog.Logger

	// mu guards jobs against a send racing the close in Shutdown.
	mu     sync.RWMutex
	jobs   chan enrichJob
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

type enrichJob struct {
	projectID string
	videoURL  string
}

// NewMetadataEnricher starts the worker pool.
func NewMetadataEnricher(provider Provider, updater MetadataUpdater, cfg EnricherConfig, logger *slog.Logger) *MetadataEnricher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Skip == nil {
		cfg.Skip = func(string) bool { return false }
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &MetadataEnricher{
		provider: provider,
		updater:  updater,
		skip:     cfg.Skip,
		timeout:  2 * time.Minute,
		logger:   logger,
		jobs:     make(chan enrichJob, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	e.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go e.worker()
	}

	return e
}

// Enqueue schedules a lookup for the project's video. Projects whose video
// needs no enrichment are accepted and ignored. A full queue blocks until the
// caller's context ends.
func (e *MetadataEnricher) Enqueue(ctx context.Context, project models.Project) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrEnricherClosed
	default:
	}

	if project.VideoURL == "" || e.skip(project.VideoURL) {
		return nil
	}

	job := enrichJob{projectID: project.ID, videoURL: project.VideoURL}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.ctx.Err() != nil {
		return ErrEnricherClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrEnricherClosed
	case e.jobs <- job:
		return nil
	}
}

// Shutdown stops accepting work, cancels in-flight lookups and waits for the
// workers to exit. Queued jobs are dropped.
func (e *MetadataEnricher) Shutdown(ctx context.Context) error {
	e.once.Do(func() {
		e.cancel()
		e.mu.Lock()
		close(e.jobs)
		e.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (e *MetadataEnricher) worker() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case job, ok := <-e.jobs:
			if !ok {
				return
			}
			e.handleJob(job)
		}
	}
}

func (e *MetadataEnricher) handleJob(job enrichJob) {
	if e.provider == nil || e.updater == nil {
		e.logger.Error("metadata enricher missing dependencies", "hasProvider", e.provider != nil, "hasUpdater", e.updater != nil)
		return
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
	defer cancel()

	meta, err := e.provider.Lookup(ctx, job.videoURL)
	if err != nil {
		e.logger.Warn("video metadata lookup failed", "project_id", job.projectID, "url", job.videoURL, "error", err)
		return
	}

	err = e.updater.SetVideoMetadata(ctx, job.projectID, models.VideoMetadata{
		ThumbnailURL: meta.Thumbnail,
		Duration:     meta.Duration,
	})
	if err != nil {
		e.logger.Warn("record video metadata", "project_id", job.projectID, "error", err)
		return
	}
	e.logger.Info("video metadata recorded", "project_id", job.projectID, "duration", meta.Duration)
}
