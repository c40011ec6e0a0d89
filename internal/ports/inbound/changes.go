package inbound

import (
	"context"

	"menu360/internal/core/domain"
)

// ChangeSink consumes change notifications from any transport.
type ChangeSink interface {
	Handle(ctx context.Context, ev domain.ChangeEvent) error
}
