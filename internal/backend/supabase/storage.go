package supabase

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"gymhub/backend/internal/backend"
)

// Storage stores objects in Supabase Storage buckets.
type Storage struct {
	c *Client
}

// NewStorage returns a FileStorage backed by c.
func NewStorage(c *Client) *Storage {
	return &Storage{c: c}
}

// Upload implements backend.FileStorage. Existing objects at path are replaced.
func (s *Storage) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	if err := checkObject(bucket, path); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.c.do(ctx, "upload "+bucket, request{
		method:     http.MethodPost,
		path:       "/storage/v1/object/" + bucket + "/" + path,
		body:       data,
		headers:    map[string]string{"Content-Type": contentType, "x-upsert": "true"},
		idempotent: true,
	})
	if err != nil {
		return "", err
	}
	return s.PublicURL(bucket, path), nil
}

// Delete implements backend.FileStorage.
func (s *Storage) Delete(ctx context.Context, bucket, path string) error {
	if err := checkObject(bucket, path); err != nil {
		return err
	}
	_, err := s.c.do(ctx, "remove "+bucket, request{
		method: http.MethodDelete,
		path:   "/storage/v1/object/" + bucket + "/" + path,
	})
	return err
}

// PublicURL returns the public URL of an object in a public bucket.
func (s *Storage) PublicURL(bucket, path string) string {
	return s.c.baseURL + "/storage/v1/object/public/" + bucket + "/" + path
}

func checkObject(bucket, path string) error {
	if !backend.ValidIdentifier(strings.ReplaceAll(bucket, "-", "_")) {
		return fmt.Errorf("%w: bucket %q", backend.ErrInvalidIdentifier, bucket)
	}
	if path == "" || strings.Contains(path, "..") || strings.HasPrefix(path, "/") {
		return fmt.Errorf("supabase: invalid object path %q", path)
	}
	return nil
}
