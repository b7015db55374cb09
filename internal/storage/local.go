package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalBucket writes objects under a directory served at baseURL.
type LocalBucket struct {
	dir     string
	baseURL string
}

// NewLocalBucket creates dir if needed. baseURL is the public prefix, for
// example "/storage".
func NewLocalBucket(dir, baseURL string) (*LocalBucket, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalBucket{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Driver implements Bucket.
func (b *LocalBucket) Driver() string { return "local" }

// Dir returns the root directory.
func (b *LocalBucket) Dir() string { return b.dir }

// Upload implements Bucket. Existing objects are overwritten.
func (b *LocalBucket) Upload(ctx context.Context, objectPath string, body io.Reader, _ string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(objectPath))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target := filepath.Join(b.dir, clean)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, io.LimitReader(body, MaxUploadBytes+1)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write object: %w", err)
	}
	if info, err := tmp.Stat(); err == nil && info.Size() > MaxUploadBytes {
		tmp.Close()
		return "", fmt.Errorf("object exceeds %d bytes", MaxUploadBytes)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("store object: %w", err)
	}
	return b.baseURL + "/" + filepath.ToSlash(clean), nil
}
