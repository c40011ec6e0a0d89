package outbound

import (
	"context"

	"menu360/internal/core/domain"
)

type Notifier interface {
	Notify(ctx context.Context, scope string, t domain.Toast)
}

type OrderEventPublisher interface {
	PublishOrderPlaced(ctx context.Context, order domain.Order) error
}
