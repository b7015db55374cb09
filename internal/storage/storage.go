// Package storage uploads operator files to a public bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"

	"wa-dashboard/internal/apperrors"
	"wa-dashboard/internal/metrics"
)

// MaxUploadBytes bounds a single upload.
const MaxUploadBytes = 10 << 20

// Bucket stores an object at path and returns its public URL.
type Bucket interface {
	Driver() string
	Upload(ctx context.Context, path string, body io.Reader, contentType string) (string, error)
}

// Uploader places files under an operator-specific prefix.
type Uploader struct {
	bucket  Bucket
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewUploader wraps bucket. m may be nil.
func NewUploader(bucket Bucket, logger *slog.Logger, m *metrics.Metrics) *Uploader {
	return &Uploader{
		bucket:  bucket,
		logger:  logger.With("component", "storage", "driver", bucket.Driver()),
		metrics: m,
	}
}

// Upload stores body as {ownerID}/{random}{ext} and returns the public URL.
// The URL is only returned once the bucket accepted the object.
func (u *Uploader) Upload(ctx context.Context, ownerID, filename, contentType string, body io.Reader) (string, error) {
	if ownerID == "" {
		return "", apperrors.ErrUnauthorized
	}
	objectPath := ObjectPath(ownerID, filename, contentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	url, err := u.bucket.Upload(ctx, objectPath, body, contentType)
	if u.metrics != nil {
		u.metrics.Uploads.WithLabelValues(u.bucket.Driver(), metrics.Outcome(err)).Inc()
	}
	if err != nil {
		u.logger.Error("upload failed", "path", objectPath, "error", err)
		return "", fmt.Errorf("upload %s: %w: %v", objectPath, apperrors.ErrStorage, err)
	}
	u.logger.Info("file uploaded", "path", objectPath)
	return url, nil
}

// ObjectPath builds the bucket path of a new upload. The extension comes from
// filename, or from contentType when filename has none.
func ObjectPath(ownerID, filename, contentType string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, "\\", "/"))))
	if ext == "" && contentType != "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	if len(ext) > 10 {
		ext = ""
	}
	return ownerID + "/" + uuid.NewString() + ext
}
