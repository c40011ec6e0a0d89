package outbound

import "context"

type MediaStore interface {
	EnsureBucket(ctx context.Context) error
	Upload(ctx context.Context, path, contentType string, data []byte) error
	PublicURL(path string) string
	Delete(ctx context.Context, path string) error
}
