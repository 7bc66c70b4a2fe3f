package storage

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// Environment variable constants for object storage configuration
const (
	EnvEndpoint  = "DOCSMITH_MINIO_ENDPOINT"   // e.g., "localhost:9000"
	EnvAccessKey = "DOCSMITH_MINIO_ACCESS_KEY"
	EnvSecretKey = "DOCSMITH_MINIO_SECRET_KEY"
	EnvBucket    = "DOCSMITH_MINIO_BUCKET"
	EnvSecure    = "DOCSMITH_MINIO_SECURE"

	// DefaultBucket is used when DOCSMITH_MINIO_BUCKET is unset
	DefaultBucket = "docs"

	// DefaultOperationTimeout bounds individual storage calls
	DefaultOperationTimeout = 60 * time.Second
)

// ObjectStore wraps a MinIO client for artifact uploads. A nil *ObjectStore is
// valid and reports itself unavailable, so callers can skip uploads cleanly
// when storage is not configured.
type ObjectStore struct {
	client   *minio.Client
	endpoint string
	bucket   string
	secure   bool
	logger   *logrus.Logger
}

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
	PublicURL    string    `json:"public_url"`
}

// IsConfigured checks if the object storage environment variables are set
func IsConfigured() bool {
	return os.Getenv(EnvEndpoint) != "" && os.Getenv(EnvAccessKey) != "" && os.Getenv(EnvSecretKey) != ""
}

// NewFromEnv creates an ObjectStore from environment configuration. Returns
// (nil, nil) when storage is not configured at all.
func NewFromEnv(logger *logrus.Logger) (*ObjectStore, error) {
	if !IsConfigured() {
		return nil, nil
	}

	endpoint := os.Getenv(EnvEndpoint)
	bucket := os.Getenv(EnvBucket)
	if bucket == "" {
		bucket = DefaultBucket
	}
	secure := false
	if v := os.Getenv(EnvSecure); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			secure = parsed
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(os.Getenv(EnvAccessKey), os.Getenv(EnvSecretKey), ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	return &ObjectStore{
		client:   client,
		endpoint: endpoint,
		bucket:   bucket,
		secure:   secure,
		logger:   logger,
	}, nil
}

// IsAvailable reports whether the store can be used
func (s *ObjectStore) IsAvailable() bool {
	return s != nil && s.client != nil
}

// Bucket returns the configured bucket name
func (s *ObjectStore) Bucket() string {
	if s == nil {
		return ""
	}
	return s.bucket
}

// EnsureBucket creates the configured bucket if it does not exist
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	if !s.IsAvailable() {
		return fmt.Errorf("object storage is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultOperationTimeout)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	s.logger.WithField("bucket", s.bucket).Info("Created storage bucket")
	return nil
}

// UploadFile uploads a local file and returns its public URL
func (s *ObjectStore) UploadFile(ctx context.Context, filePath, objectName string) (string, error) {
	if !s.IsAvailable() {
		return "", fmt.Errorf("object storage is not configured")
	}

	if err := s.EnsureBucket(ctx); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultOperationTimeout)
	defer cancel()

	contentType := detectContentType(objectName)
	info, err := s.client.FPutObject(ctx, s.bucket, objectName, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectName, err)
	}

	publicURL := s.PublicURL(objectName)
	s.logger.WithFields(logrus.Fields{
		"object": objectName,
		"size":   info.Size,
		"url":    publicURL,
	}).Debug("Uploaded object")

	return publicURL, nil
}

// PublicURL constructs the direct-access URL for an object
func (s *ObjectStore) PublicURL(objectName string) string {
	scheme := "http"
	if s.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, s.bucket, objectName)
}

// PresignedURL generates a time-limited GET URL for a private object
func (s *ObjectStore) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	if !s.IsAvailable() {
		return "", fmt.Errorf("object storage is not configured")
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", objectName, err)
	}
	return u.String(), nil
}

// Stat returns metadata for a stored object
func (s *ObjectStore) Stat(ctx context.Context, objectName string) (*ObjectInfo, error) {
	if !s.IsAvailable() {
		return nil, fmt.Errorf("object storage is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultOperationTimeout)
	defer cancel()

	stat, err := s.client.StatObject(ctx, s.bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", objectName, err)
	}

	return &ObjectInfo{
		Key:          stat.Key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
		PublicURL:    s.PublicURL(stat.Key),
	}, nil
}

// List returns up to limit objects under the given prefix
func (s *ObjectStore) List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error) {
	if !s.IsAvailable() {
		return nil, fmt.Errorf("object storage is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultOperationTimeout)
	defer cancel()

	var objects []ObjectInfo
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			PublicURL:    s.PublicURL(object.Key),
		})
		if limit > 0 && len(objects) >= limit {
			break
		}
	}

	return objects, nil
}

// Stats summarises object count and total size under a prefix
type Stats struct {
	Bucket      string `json:"bucket"`
	ObjectCount int    `json:"object_count"`
	TotalBytes  int64  `json:"total_bytes"`
}

// Usage walks the bucket under prefix and aggregates object count and size
func (s *ObjectStore) Usage(ctx context.Context, prefix string) (*Stats, error) {
	objects, err := s.List(ctx, prefix, 0)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Bucket: s.bucket, ObjectCount: len(objects)}
	for _, object := range objects {
		stats.TotalBytes += object.Size
	}
	return stats, nil
}

// detectContentType maps a filename to a MIME type, with fallbacks for the
// formats this service produces.
func detectContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".md":
		return "text/markdown"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	case ".pdf":
		return "application/pdf"
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}
