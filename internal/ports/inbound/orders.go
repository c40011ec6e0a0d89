package inbound

import (
	"context"

	"menu360/internal/core/domain"
)

type OrderSummary struct {
	ByStatus map[domain.OrderStatus]int `json:"by_status"`
	Total    int                        `json:"total"`
	Revenue  float64                    `json:"revenue"`
}

type OrderUseCase interface {
	PlaceOrder(ctx context.Context, order domain.Order) (domain.Order, error)
	UpdateStatus(ctx context.Context, restaurantID, orderID string, status domain.OrderStatus) (domain.Order, error)
	MarkItemPrepared(ctx context.Context, restaurantID, orderItemID string) (domain.OrderItem, error)
	ListPage(ctx context.Context, restaurantID string, page, pageSize int) (orders []domain.Order, total int, err error)
	Summary(ctx context.Context, restaurantID string) (OrderSummary, error)
}
