package service

import (
	"context"

	"menu360/internal/core/domain"
	"menu360/internal/core/realtime"
	"menu360/internal/ports/outbound"
)

// applyLocal runs a write made by this process through the same reducer as
// realtime notifications, so readers see it before any echo arrives.
func applyLocal(ctx context.Context, cache outbound.QueryCache, op domain.ChangeOp, kind domain.Kind, rec domain.Record, id, restaurantID string) {
	ch := realtime.Change{Op: op, Kind: kind, Record: rec, ID: id, RestaurantID: restaurantID}
	if it, ok := rec.(domain.OrderItem); ok {
		ch.OrderID = it.OrderID
	}
	cache.Apply(ctx, func(s domain.Snapshot) domain.Snapshot {
		return realtime.Reduce(s, ch)
	})
}

// findOrder looks an order up in any cached order list.
func findOrder(ctx context.Context, cache outbound.QueryCache, restaurantID, orderID string) (domain.Order, bool) {
	for key, list := range cache.Snapshot(ctx) {
		if key.Kind != domain.KindOrders || key.RestaurantID != restaurantID {
			continue
		}
		if i := domain.IndexOf(list, orderID); i >= 0 {
			if o, ok := list[i].(domain.Order); ok {
				return o, true
			}
		}
	}
	return domain.Order{}, false
}
