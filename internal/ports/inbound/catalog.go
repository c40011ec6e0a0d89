package inbound

import (
	"context"

	"menu360/internal/core/domain"
)

type CatalogUseCase interface {
	Query(ctx context.Context, key domain.QueryKey) ([]domain.Record, domain.DataSource, error)
	WarmCache(ctx context.Context, restaurantIDs []string) (int, error)
	Refresh(ctx context.Context) (int, error)
	Invalidate(ctx context.Context, key domain.QueryKey)
	InvalidateAll(ctx context.Context)
	FindMenuItem(ctx context.Context, restaurantID, itemID string) (domain.MenuItem, error)
	Version(ctx context.Context, key domain.QueryKey) uint64
}
