package publisher

import (
	"context"
	"errors"

	"menu360/internal/core/domain"
	"menu360/internal/ports/outbound"
)

// Notifiers delivers each toast to every notifier in order.
type Notifiers []outbound.Notifier

func (n Notifiers) Notify(ctx context.Context, scope string, t domain.Toast) {
	for _, x := range n {
		x.Notify(ctx, scope, t)
	}
}

// Publishers publishes to every publisher and joins their errors.
type Publishers []outbound.OrderEventPublisher

func (p Publishers) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	var errs []error
	for _, x := range p {
		if err := x.PublishOrderPlaced(ctx, order); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ outbound.Notifier            = Notifiers(nil)
	_ outbound.OrderEventPublisher = Publishers(nil)
)
