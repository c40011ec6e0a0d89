package outbound

import (
	"context"

	"menu360/internal/core/domain"
)

type Repository interface {
	List(ctx context.Context, key domain.QueryKey) ([]domain.Record, error)

	GetOrder(ctx context.Context, restaurantID, orderID string) (domain.Order, error)
	CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, restaurantID, orderID string, status domain.OrderStatus) (domain.Order, error)
	UpdateOrderItemStatus(ctx context.Context, restaurantID, itemID string, status domain.ItemStatus) (domain.OrderItem, error)

	SaveCategory(ctx context.Context, c domain.Category) (domain.Category, error)
	DeleteCategory(ctx context.Context, restaurantID, id string) error
	SaveMenuItem(ctx context.Context, m domain.MenuItem) (domain.MenuItem, error)
	DeleteMenuItem(ctx context.Context, restaurantID, id string) error
}
