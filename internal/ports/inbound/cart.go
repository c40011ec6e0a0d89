package inbound

import (
	"context"

	"menu360/internal/core/domain"
)

type Cart interface {
	Add(ctx context.Context, item domain.MenuItem) error
	AddN(ctx context.Context, item domain.MenuItem, n int) error
	Remove(ctx context.Context, itemID string) error
	SetQuantity(ctx context.Context, itemID string, n int) error
	Clear(ctx context.Context) error
	Lines() []domain.CartLine
	Totals() domain.CartTotals
	Submit(ctx context.Context, info domain.CustomerInfo) (domain.Order, error)
	Version() uint64
}

type CartUseCase interface {
	Cart(ctx context.Context, session domain.CartSession) (Cart, error)
}
