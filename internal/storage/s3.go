package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/reelnotes/backend/internal/config"
)

// deleteBatchSize is the most keys a single DeleteObjects call accepts.
const deleteBatchSize = 1000

// S3Storage implements Blobs backed by an S3-compatible service.
type S3Storage struct {
	client     *s3.Client
	uploader   *manager.Uploader
	presigner  *s3.PresignClient
	bucket     string
	baseURL    string
	presignTTL time.Duration
}

// NewS3Storage configures a client targeting the provided object store.
func NewS3Storage(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Storage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &S3Storage{
		client:     client,
		uploader:   uploader,
		presigner:  s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		baseURL:    strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		presignTTL: ttl,
	}, nil
}

// Put uploads body under key using multipart uploads for large objects and
// returns the object's public location.
func (s *S3Storage) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", fmt.Errorf("s3 storage: empty key")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("s3 storage upload %s: %w", key, err)
	}
	return s.PublicURL(key), nil
}

// PublicURL is the unsigned location of key, or the key itself when no public
// base URL is configured.
func (s *S3Storage) PublicURL(key string) string {
	if s.baseURL == "" {
		return key
	}
	return fmt.Sprintf("%s/%s", s.baseURL, key)
}

// PresignGet returns a time-limited download URL for key.
func (s *S3Storage) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", fmt.Errorf("s3 storage presign %s: %w", key, err)
	}
	return req.URL, nil
}

// List returns every object under prefix.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]Object, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	objects := []Object{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 storage list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, Object{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

// Delete removes one object. Deleting a missing key succeeds.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 storage delete %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every object under prefix and reports how many were removed.
func (s *S3Storage) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	objects, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}

	removed := 0
	for start := 0; start < len(objects); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(objects))
		ids := make([]s3types.ObjectIdentifier, 0, end-start)
		for _, obj := range objects[start:end] {
			ids = append(ids, s3types.ObjectIdentifier{Key: aws.String(obj.Key)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return removed, fmt.Errorf("s3 storage delete %s: %w", prefix, err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return removed + len(ids) - len(out.Errors), fmt.Errorf("s3 storage delete %s: %d objects failed, first %s: %s",
				prefix, len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
		removed += len(ids)
	}
	return removed, nil
}

// Exists reports whether key is present.
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("s3 storage head %s: %w", key, err)
	}
	return true, nil
}

var _ Blobs = (*S3Storage)(nil)
