// Package storage keeps project video and thumbnail files in an object store.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/reelnotes/backend/internal/apperr"
	"github.com/reelnotes/backend/internal/logging"
)

// Blobs is the object store surface the asset layer needs.
type Blobs interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Object describes one stored blob.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Asset is a stored project file as reported to clients.
type Asset struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	URL       string    `json:"url,omitempty"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Upload is a file received from a client.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

const (
	videosRoot     = "videos"
	thumbnailsRoot = "thumbnails"
)

// VideoKey is the object key for a project video.
func VideoKey(projectID, fileName string) string {
	return path.Join(videosRoot, projectID, fileName)
}

// ThumbnailKey is the object key for a project thumbnail.
func ThumbnailKey(projectID, fileName string) string {
	return path.Join(thumbnailsRoot, projectID, fileName)
}

// Assets stores project files under videos/{projectID}/ and thumbnails/{projectID}/.
type Assets struct {
	blobs Blobs
	now   func() time.Time
}

// NewAssets wraps an object store.
func NewAssets(blobs Blobs) *Assets {
	return &Assets{blobs: blobs, now: time.Now}
}

// UploadVideo stores a project video, logging progress as bytes are sent.
func (a *Assets) UploadVideo(ctx context.Context, projectID string, upload Upload) (Asset, error) {
	name, err := cleanName(upload.FileName)
	if err != nil {
		return Asset{}, err
	}
	return a.put(ctx, VideoKey(projectID, name), name, upload)
}

// UploadThumbnail stores a project thumbnail. Without a file name one is
// derived from the current time.
func (a *Assets) UploadThumbnail(ctx context.Context, projectID string, upload Upload) (Asset, error) {
	if strings.TrimSpace(upload.FileName) == "" {
		upload.FileName = fmt.Sprintf("thumb_%d.jpg", a.now().UnixMilli())
	}
	name, err := cleanName(upload.FileName)
	if err != nil {
		return Asset{}, err
	}
	return a.put(ctx, ThumbnailKey(projectID, name), name, upload)
}

// VideoURL returns a presigned download URL for an existing project video.
func (a *Assets) VideoURL(ctx context.Context, projectID, fileName string) (string, error) {
	return a.presign(ctx, VideoKey, projectID, fileName)
}

// ThumbnailURL returns a presigned download URL for an existing thumbnail.
func (a *Assets) ThumbnailURL(ctx context.Context, projectID, fileName string) (string, error) {
	return a.presign(ctx, ThumbnailKey, projectID, fileName)
}

// VideoExists reports whether the project video is stored.
func (a *Assets) VideoExists(ctx context.Context, projectID, fileName string) (bool, error) {
	name, err := cleanName(fileName)
	if err != nil {
		return false, err
	}
	ok, err := a.blobs.Exists(ctx, VideoKey(projectID, name))
	if err != nil {
		return false, blobError(ctx, err)
	}
	return ok, nil
}

// ListVideos returns the project's stored videos, ordered by key.
func (a *Assets) ListVideos(ctx context.Context, projectID string) ([]Asset, error) {
	prefix := path.Join(videosRoot, projectID) + "/"
	objects, err := a.blobs.List(ctx, prefix)
	if err != nil {
		return nil, blobError(ctx, err)
	}
	assets := make([]Asset, 0, len(objects))
	for _, obj := range objects {
		assets = append(assets, Asset{
			Name:      strings.TrimPrefix(obj.Key, prefix),
			Path:      obj.Key,
			Size:      obj.Size,
			UpdatedAt: obj.LastModified,
		})
	}
	return assets, nil
}

// DeleteVideo removes a project video. A missing file is not-found.
func (a *Assets) DeleteVideo(ctx context.Context, projectID, fileName string) error {
	name, err := cleanName(fileName)
	if err != nil {
		return err
	}
	exists, err := a.VideoExists(ctx, projectID, name)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.New(apperr.NotFound, "video not found")
	}
	if err := a.blobs.Delete(ctx, VideoKey(projectID, name)); err != nil {
		return blobError(ctx, err)
	}
	return nil
}

// DeleteProjectAssets removes every video and thumbnail stored for the project.
func (a *Assets) DeleteProjectAssets(ctx context.Context, projectID string) error {
	var total int
	for _, root := range []string{videosRoot, thumbnailsRoot} {
		n, err := a.blobs.DeletePrefix(ctx, path.Join(root, projectID)+"/")
		total += n
		if err != nil {
			return fmt.Errorf("delete %s for project %s: %w", root, projectID, err)
		}
	}
	logging.FromContext(ctx).Info("project assets removed", "project_id", projectID, "objects", total)
	return nil
}

func (a *Assets) put(ctx context.Context, key, name string, upload Upload) (Asset, error) {
	if upload.Body == nil {
		return Asset{}, apperr.New(apperr.InvalidArgument, "file is required")
	}

	logger := logging.FromContext(ctx).With("key", key)
	body := &progressReader{r: upload.Body, total: upload.Size, logger: logger}

	location, err := a.blobs.Put(ctx, key, body, upload.ContentType)
	if err != nil {
		return Asset{}, blobError(ctx, err)
	}
	logger.Info("upload complete", "bytes", body.read)

	return Asset{
		Name:      name,
		Path:      key,
		URL:       location,
		Size:      body.read,
		UpdatedAt: a.now().UTC(),
	}, nil
}

func (a *Assets) presign(ctx context.Context, keyFor func(string, string) string, projectID, fileName string) (string, error) {
	name, err := cleanName(fileName)
	if err != nil {
		return "", err
	}
	key := keyFor(projectID, name)
	exists, err := a.blobs.Exists(ctx, key)
	if err != nil {
		return "", blobError(ctx, err)
	}
	if !exists {
		return "", apperr.New(apperr.NotFound, "file not found")
	}
	url, err := a.blobs.PresignGet(ctx, key)
	if err != nil {
		return "", blobError(ctx, err)
	}
	return url, nil
}

// cleanName accepts a bare file name and nothing that could climb out of the
// project's folder.
func cleanName(fileName string) (string, error) {
	name := strings.TrimSpace(fileName)
	if name == "" {
		return "", apperr.New(apperr.InvalidArgument, "file name is required")
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", apperr.New(apperr.InvalidArgument, "file name must not contain path separators")
	}
	return name, nil
}

func blobError(ctx context.Context, err error) error {
	logging.FromContext(ctx).Error("object store failure", "error", err)
	return apperr.Wrap(apperr.Internal, "", err)
}

// progressReader logs each quarter of a sized upload, or every 8 MiB when the
// size is unknown.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	next   int64
	logger *slog.Logger
}

const unsizedProgressStep = 8 << 20

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)

	step := int64(unsizedProgressStep)
	if p.total > 0 {
		step = max(p.total/4, 1)
	}
	if p.next == 0 {
		p.next = step
	}
	for p.read >= p.next {
		attrs := []any{"bytes", p.read}
		if p.total > 0 {
			attrs = append(attrs, "total", p.total, "percent", min(p.read*100/p.total, 100))
		}
		p.logger.Debug("upload progress", attrs...)
		p.next += step
	}
	return n, err
}
