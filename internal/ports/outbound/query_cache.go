package outbound

import (
	"context"

	"menu360/internal/core/domain"
)

// Loader fetches the authoritative list for a key.
type Loader func(ctx context.Context) ([]domain.Record, error)

type QueryCache interface {
	Get(ctx context.Context, key domain.QueryKey) ([]domain.Record, bool)
	Set(ctx context.Context, key domain.QueryKey, records []domain.Record)
	PatchInsert(ctx context.Context, key domain.QueryKey, rec domain.Record)
	PatchUpdate(ctx context.Context, key domain.QueryKey, rec domain.Record)
	PatchDelete(ctx context.Context, key domain.QueryKey, id string)
	Invalidate(ctx context.Context, key domain.QueryKey)
	Clear(ctx context.Context)

	Fetch(ctx context.Context, key domain.QueryKey, load Loader) ([]domain.Record, error)
	Apply(ctx context.Context, fn func(domain.Snapshot) domain.Snapshot) []domain.QueryKey

	Snapshot(ctx context.Context) domain.Snapshot
	StaleKeys(ctx context.Context) []domain.QueryKey
	Version(ctx context.Context, key domain.QueryKey) uint64
	Len(ctx context.Context) int
}
