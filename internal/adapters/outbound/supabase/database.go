package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"menu360/internal/core/domain"
	"menu360/internal/core/realtime"
	"menu360/internal/ports/outbound"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const orderColumns = "*,items:order_items(*)"

var listOrder = map[domain.Kind]string{
	domain.KindRestaurants: "created_at.asc",
	domain.KindCategories:  "position.asc,name.asc",
	domain.KindMenuItems:   "name.asc,id.asc",
	domain.KindOrders:      "created_at.desc",
	domain.KindOrderItems:  "order_id.asc,name.asc",
	domain.KindStaff:       "name.asc",
	domain.KindInvoices:    "issued_at.desc",
	domain.KindCustomers:   "name.asc",
}

// Repository reads and writes rows through PostgREST.
type Repository struct {
	c   *Client
	log *logrus.Entry
	now func() time.Time
}

func NewRepository(c *Client, log *logrus.Entry) *Repository {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Repository{c: c, log: log, now: time.Now}
}

func listParams(key domain.QueryKey) (url.Values, error) {
	order, ok := listOrder[key.Kind]
	if !ok {
		return nil, domain.NewValidationError("kind", fmt.Sprintf("unknown collection %q", key.Kind))
	}
	q := url.Values{}
	q.Set("select", "*")
	if key.Kind == domain.KindOrders {
		q.Set("select", orderColumns)
	}
	q.Set("order", order)

	switch {
	case key.Kind == domain.KindRestaurants:
		if key.RestaurantID != "" {
			q.Set("id", "eq."+key.RestaurantID)
		}
	case key.RestaurantID == "":
		return nil, domain.NewValidationError("restaurant_id", "is required")
	default:
		q.Set("restaurant_id", "eq."+key.RestaurantID)
	}
	if key.Kind == domain.KindOrders && key.Scope != "" {
		q.Set("table_id", "eq."+key.Scope)
	}
	return q, nil
}

func (r *Repository) List(ctx context.Context, key domain.QueryKey) ([]domain.Record, error) {
	q, err := listParams(key)
	if err != nil {
		return nil, err
	}
	body, err := r.c.do(ctx, request{method: "GET", path: "/rest/v1/" + string(key.Kind), query: q})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", key.Kind, err)
	}
	return decodeRows(key.Kind, body)
}

// decodeRows runs every row through the realtime reshaper, so numeric strings
// and array literals decode the same way as in change notifications.
func decodeRows(kind domain.Kind, body []byte) ([]domain.Record, error) {
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return nil, fmt.Errorf("decode %s: %w", kind, domain.NewValidationError("body", "expected a JSON array"))
	}
	out := make([]domain.Record, 0, len(res.Array()))
	for _, row := range res.Array() {
		raw, err := realtime.Reshape(kind, []byte(row.Raw))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		rec, err := domain.DecodeRecord(kind, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func first(kind domain.Kind, body []byte) (domain.Record, error) {
	recs, err := decodeRows(kind, body)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: %w", kind, domain.ErrNotFound)
	}
	return recs[0], nil
}

func (r *Repository) GetOrder(ctx context.Context, restaurantID, orderID string) (domain.Order, error) {
	q := url.Values{}
	q.Set("select", orderColumns)
	q.Set("id", "eq."+orderID)
	q.Set("restaurant_id", "eq."+restaurantID)
	body, err := r.c.do(ctx, request{method: "GET", path: "/rest/v1/orders", query: q})
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	rec, err := first(domain.KindOrders, body)
	if err != nil {
		return domain.Order{}, err
	}
	return rec.(domain.Order), nil
}

// CreateOrder inserts the order and then its items. PostgREST has no
// multi-table transaction, so a failed item insert removes the order again.
func (r *Repository) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	items := make([]domain.OrderItem, len(order.Items))
	for i, it := range order.Items {
		it.OrderID = order.ID
		it.RestaurantID = order.RestaurantID
		if it.Status == "" {
			it.Status = domain.ItemPending
		}
		items[i] = it
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = r.now().UTC()
	}
	order.UpdatedAt = order.CreatedAt

	row, err := rowOf(order, "items")
	if err != nil {
		return domain.Order{}, err
	}
	if _, err := r.c.do(ctx, request{
		method:  "POST",
		path:    "/rest/v1/orders",
		body:    row,
		headers: map[string]string{"Prefer": "return=minimal"},
	}); err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	if _, err := r.c.do(ctx, request{
		method:  "POST",
		path:    "/rest/v1/order_items",
		body:    items,
		headers: map[string]string{"Prefer": "return=minimal"},
	}); err != nil {
		if derr := r.delete(context.WithoutCancel(ctx), "orders", order.RestaurantID, order.ID); derr != nil {
			r.log.WithError(derr).WithField("order_id", order.ID).Error("[supabase] orphan order left behind")
		}
		return domain.Order{}, fmt.Errorf("insert order items: %w", err)
	}

	order.Items = items
	return order, nil
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, restaurantID, orderID string, status domain.OrderStatus) (domain.Order, error) {
	q := url.Values{}
	q.Set("id", "eq."+orderID)
	q.Set("restaurant_id", "eq."+restaurantID)
	q.Set("select", orderColumns)
	body, err := r.c.do(ctx, request{
		method:  "PATCH",
		path:    "/rest/v1/orders",
		query:   q,
		body:    map[string]any{"status": status, "updated_at": r.now().UTC()},
		headers: map[string]string{"Prefer": "return=representation"},
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order: %w", err)
	}
	rec, err := first(domain.KindOrders, body)
	if err != nil {
		return domain.Order{}, err
	}
	return rec.(domain.Order), nil
}

func (r *Repository) UpdateOrderItemStatus(ctx context.Context, restaurantID, itemID string, status domain.ItemStatus) (domain.OrderItem, error) {
	q := url.Values{}
	q.Set("id", "eq."+itemID)
	q.Set("restaurant_id", "eq."+restaurantID)
	body, err := r.c.do(ctx, request{
		method:  "PATCH",
		path:    "/rest/v1/order_items",
		query:   q,
		body:    map[string]any{"status": status},
		headers: map[string]string{"Prefer": "return=representation"},
	})
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("update order item: %w", err)
	}
	rec, err := first(domain.KindOrderItems, body)
	if err != nil {
		return domain.OrderItem{}, err
	}
	return rec.(domain.OrderItem), nil
}

func (r *Repository) SaveCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	rec, err := r.upsert(ctx, domain.KindCategories, c)
	if err != nil {
		return domain.Category{}, fmt.Errorf("save category: %w", err)
	}
	return rec.(domain.Category), nil
}

func (r *Repository) DeleteCategory(ctx context.Context, restaurantID, id string) error {
	return r.delete(ctx, string(domain.KindCategories), restaurantID, id)
}

func (r *Repository) SaveMenuItem(ctx context.Context, m domain.MenuItem) (domain.MenuItem, error) {
	if m.Tags == nil {
		m.Tags = []string{}
	}
	rec, err := r.upsert(ctx, domain.KindMenuItems, m)
	if err != nil {
		return domain.MenuItem{}, fmt.Errorf("save menu item: %w", err)
	}
	return rec.(domain.MenuItem), nil
}

func (r *Repository) DeleteMenuItem(ctx context.Context, restaurantID, id string) error {
	return r.delete(ctx, string(domain.KindMenuItems), restaurantID, id)
}

func (r *Repository) upsert(ctx context.Context, kind domain.Kind, rec domain.Record) (domain.Record, error) {
	row, err := rowOf(rec)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("on_conflict", "id")
	body, err := r.c.do(ctx, request{
		method:  "POST",
		path:    "/rest/v1/" + string(kind),
		query:   q,
		body:    row,
		headers: map[string]string{"Prefer": "resolution=merge-duplicates,return=representation"},
	})
	if err != nil {
		return nil, err
	}
	return first(kind, body)
}

func (r *Repository) delete(ctx context.Context, table, restaurantID, id string) error {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("restaurant_id", "eq."+restaurantID)
	body, err := r.c.do(ctx, request{
		method:  "DELETE",
		path:    "/rest/v1/" + table,
		query:   q,
		headers: map[string]string{"Prefer": "return=representation"},
	})
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if len(gjson.ParseBytes(body).Array()) == 0 {
		return fmt.Errorf("%s %s: %w", table, id, domain.ErrNotFound)
	}
	return nil
}

// rowOf turns a record into a PostgREST body. Zero timestamps are dropped so
// column defaults apply.
func rowOf(v any, drop ...string) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var row map[string]any
	if err := json.Unmarshal(b, &row); err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	for _, k := range drop {
		delete(row, k)
	}
	for k, v := range row {
		if s, ok := v.(string); ok && s == zeroTime {
			delete(row, k)
		}
	}
	return row, nil
}

var zeroTime = time.Time{}.Format(time.RFC3339Nano)

var _ outbound.Repository = (*Repository)(nil)
