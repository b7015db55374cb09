package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SupabaseBucket uploads through the Supabase Storage REST API.
type SupabaseBucket struct {
	baseURL string
	key     string
	bucket  string
	client  *http.Client
}

// NewSupabaseBucket builds a bucket client. client may be nil.
func NewSupabaseBucket(baseURL, key, bucket string, client *http.Client) *SupabaseBucket {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SupabaseBucket{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		bucket:  bucket,
		client:  client,
	}
}

// Driver implements Bucket.
func (b *SupabaseBucket) Driver() string { return "supabase" }

// Upload implements Bucket. Existing objects are overwritten. Bodies larger
// than MaxUploadBytes are rejected before anything is sent.
func (b *SupabaseBucket) Upload(ctx context.Context, objectPath string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxUploadBytes+1))
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return "", fmt.Errorf("object exceeds %d bytes", MaxUploadBytes)
	}

	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", b.baseURL, b.bucket, objectPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.key)
	req.Header.Set("apikey", b.key)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	res, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("supabase upload: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("supabase upload status=%d body=%s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return b.PublicURL(objectPath), nil
}

// PublicURL returns the public URL of objectPath.
func (b *SupabaseBucket) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", b.baseURL, b.bucket, objectPath)
}
