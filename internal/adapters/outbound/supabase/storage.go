package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"menu360/internal/core/domain"
	"menu360/internal/ports/outbound"
)

const DefaultBucket = "menu-images"

// Storage keeps menu images in one public bucket.
type Storage struct {
	c      *Client
	bucket string
}

func NewStorage(c *Client, bucket string) *Storage {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &Storage{c: c, bucket: bucket}
}

// EnsureBucket creates the bucket when it is missing. An existing bucket is
// left as it is.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	_, err := s.c.do(ctx, request{method: "GET", path: "/storage/v1/bucket/" + url.PathEscape(s.bucket)})
	if err == nil {
		return nil
	}
	// The storage API answers 400 "Bucket not found" on some versions.
	if !errors.Is(err, domain.ErrNotFound) && !domain.IsValidation(err) {
		return fmt.Errorf("get bucket: %w", err)
	}

	_, err = s.c.do(ctx, request{
		method: "POST",
		path:   "/storage/v1/bucket",
		body: map[string]any{
			"id":                 s.bucket,
			"name":               s.bucket,
			"public":             true,
			"file_size_limit":    5 << 20,
			"allowed_mime_types": []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
		},
	})
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func (s *Storage) Upload(ctx context.Context, path, contentType string, data []byte) error {
	_, err := s.c.do(ctx, request{
		method: "POST",
		path:   s.objectPath(path),
		raw:    data,
		headers: map[string]string{
			"Content-Type":  contentType,
			"x-upsert":      "true",
			"Cache-Control": "max-age=3600",
		},
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

func (s *Storage) PublicURL(path string) string {
	return s.c.baseURL + "/storage/v1/object/public/" + s.bucket + "/" + path
}

func (s *Storage) Delete(ctx context.Context, path string) error {
	_, err := s.c.do(ctx, request{
		method: "DELETE",
		path:   "/storage/v1/object/" + url.PathEscape(s.bucket),
		body:   map[string][]string{"prefixes": {path}},
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (s *Storage) objectPath(p string) string {
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return "/storage/v1/object/" + url.PathEscape(s.bucket) + "/" + strings.Join(parts, "/")
}

var _ outbound.MediaStore = (*Storage)(nil)
