package outbound

import (
	"context"
	"time"
)

// KVStore stands in for on-device storage. Get returns domain.ErrNotFound for a missing key.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
