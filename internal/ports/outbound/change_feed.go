package outbound

import (
	"context"

	"menu360/internal/core/domain"
)

type ChangeHandler func(ctx context.Context, ev domain.ChangeEvent)

// StatusHandler receives provider acknowledgements and errors for one subscription.
// err is non-nil only with domain.StateError.
type StatusHandler func(state domain.SubscriptionState, err error)

type Subscription interface {
	Unsubscribe(ctx context.Context) error
}

type ChangeFeed interface {
	Subscribe(ctx context.Context, spec domain.SubscriptionSpec, onChange ChangeHandler, onStatus StatusHandler) (Subscription, error)
}
