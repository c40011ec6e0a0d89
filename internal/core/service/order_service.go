package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"menu360/internal/core/domain"
	"menu360/internal/ports/inbound"
	"menu360/internal/ports/outbound"

	"github.com/sirupsen/logrus"
)

// Querier reads cached tenant lists.
type Querier interface {
	Query(ctx context.Context, key domain.QueryKey) ([]domain.Record, domain.DataSource, error)
}

type OrderService struct {
	repo      outbound.Repository
	cache     outbound.QueryCache
	catalog   Querier
	publisher outbound.OrderEventPublisher
	notifier  outbound.Notifier
	log       *logrus.Entry

	// localToasts makes the service announce its own writes. It is off when a
	// realtime feed echoes the writes back and the bridge announces them.
	localToasts bool
}

func NewOrderService(repo outbound.Repository, cache outbound.QueryCache, catalog Querier, publisher outbound.OrderEventPublisher, notifier outbound.Notifier, localToasts bool, log *logrus.Entry) *OrderService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &OrderService{
		repo:        repo,
		cache:       cache,
		catalog:     catalog,
		publisher:   publisher,
		notifier:    notifier,
		localToasts: localToasts,
		log:         log,
	}
}

// PlaceOrder persists a submitted cart. Publishing is best effort.
func (s *OrderService) PlaceOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if order.Status == "" {
		order.Status = domain.OrderPending
	}
	if err := order.Validate(); err != nil {
		return domain.Order{}, fmt.Errorf("validate: %w", err)
	}
	order.Total = order.ItemsTotal()

	saved, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	applyLocal(ctx, s.cache, domain.OpInsert, domain.KindOrders, saved, saved.ID, saved.RestaurantID)
	for _, it := range saved.Items {
		applyLocal(ctx, s.cache, domain.OpInsert, domain.KindOrderItems, it, it.ID, it.RestaurantID)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishOrderPlaced(ctx, saved); err != nil {
			s.log.WithError(err).WithField("order_id", saved.ID).Warn("[orders] publish failed")
		}
	}
	if s.localToasts && s.notifier != nil {
		s.notifier.Notify(ctx, domain.StaffScope(saved.RestaurantID),
			domain.InfoToast(fmt.Sprintf("New order from table %s", saved.TableID)))
	}

	s.log.WithFields(logrus.Fields{"order_id": saved.ID, "restaurant_id": saved.RestaurantID, "table_id": saved.TableID}).
		Info("[orders] order placed")
	return saved, nil
}

func (s *OrderService) UpdateStatus(ctx context.Context, restaurantID, orderID string, status domain.OrderStatus) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, domain.NewValidationError("status", "unknown status "+string(status))
	}

	current, err := s.repo.GetOrder(ctx, restaurantID, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	if !domain.ValidStatusTransition(current.Status, status) {
		return domain.Order{}, fmt.Errorf("order %s cannot move from %s to %s: %w", orderID, current.Status, status, domain.ErrConflict)
	}

	updated, err := s.repo.UpdateOrderStatus(ctx, restaurantID, orderID, status)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}
	applyLocal(ctx, s.cache, domain.OpUpdate, domain.KindOrders, updated, updated.ID, updated.RestaurantID)

	if s.localToasts && s.notifier != nil && status == domain.OrderCompleted {
		t := domain.SuccessToast(fmt.Sprintf("Order #%s completed", shortID(updated.ID)))
		s.notifier.Notify(ctx, domain.StaffScope(restaurantID), t)
		s.notifier.Notify(ctx, domain.TableScope(restaurantID, updated.TableID), t)
	}
	return updated, nil
}

func (s *OrderService) MarkItemPrepared(ctx context.Context, restaurantID, orderItemID string) (domain.OrderItem, error) {
	item, err := s.repo.UpdateOrderItemStatus(ctx, restaurantID, orderItemID, domain.ItemPrepared)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("update order item: %w", err)
	}
	applyLocal(ctx, s.cache, domain.OpUpdate, domain.KindOrderItems, item, item.ID, item.RestaurantID)

	if s.localToasts && s.notifier != nil {
		if o, ok := findOrder(ctx, s.cache, restaurantID, item.OrderID); ok {
			s.notifier.Notify(ctx, domain.TableScope(restaurantID, o.TableID),
				domain.SuccessToast(fmt.Sprintf("%s is ready", item.Name)))
		}
	}
	return item, nil
}

// ListPage pages the cached order list, newest first.
func (s *OrderService) ListPage(ctx context.Context, restaurantID string, page, pageSize int) ([]domain.Order, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 20
	}

	orders, err := s.orders(ctx, restaurantID)
	if err != nil {
		return nil, 0, err
	}
	total := len(orders)
	if total == 0 {
		return []domain.Order{}, 0, nil
	}

	offset := (page - 1) * pageSize
	if offset >= total {
		return []domain.Order{}, total, nil
	}
	end := offset + pageSize
	if end > total {
		end = total
	}
	return orders[offset:end], total, nil
}

// Summary counts orders by status; revenue covers completed orders only.
func (s *OrderService) Summary(ctx context.Context, restaurantID string) (inbound.OrderSummary, error) {
	orders, err := s.orders(ctx, restaurantID)
	if err != nil {
		return inbound.OrderSummary{}, err
	}
	sum := inbound.OrderSummary{ByStatus: make(map[domain.OrderStatus]int)}
	for _, o := range orders {
		sum.ByStatus[o.Status]++
		sum.Total++
		if o.Status == domain.OrderCompleted {
			sum.Revenue += o.Total
		}
	}
	return sum, nil
}

func (s *OrderService) orders(ctx context.Context, restaurantID string) ([]domain.Order, error) {
	recs, _, err := s.catalog.Query(ctx, domain.NewQueryKey(domain.KindOrders, restaurantID))
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]domain.Order, 0, len(recs))
	for _, r := range recs {
		if o, ok := r.(domain.Order); ok {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return strings.Compare(out[i].ID, out[j].ID) < 0
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var _ inbound.OrderUseCase = (*OrderService)(nil)
