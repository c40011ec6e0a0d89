package inbound

import (
	"context"

	"menu360/internal/core/domain"
)

type MenuUseCase interface {
	SaveCategory(ctx context.Context, c domain.Category) (domain.Category, error)
	DeleteCategory(ctx context.Context, restaurantID, id string) error
	SaveMenuItem(ctx context.Context, m domain.MenuItem) (domain.MenuItem, error)
	DeleteMenuItem(ctx context.Context, restaurantID, id string) error
	UploadItemImage(ctx context.Context, restaurantID, itemID, filename, contentType string, data []byte) (domain.MenuItem, error)
	BootstrapStorage(ctx context.Context) error
}
