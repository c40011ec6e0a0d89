package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"menu360/internal/core/domain"
	"menu360/internal/ports/outbound"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Rows are selected as jsonb and decoded with domain.DecodeRecord.
const orderSelect = `
	SELECT to_jsonb(o) || jsonb_build_object('items', COALESCE(
		(SELECT jsonb_agg(to_jsonb(i) ORDER BY i.name, i.id) FROM order_items i WHERE i.order_id = o.id),
		'[]'::jsonb))
	FROM orders o`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func listQuery(key domain.QueryKey) (string, []any, error) {
	if key.Kind == domain.KindRestaurants {
		if key.RestaurantID == "" {
			return `SELECT to_jsonb(t) FROM restaurants t ORDER BY t.created_at, t.id`, nil, nil
		}
		return `SELECT to_jsonb(t) FROM restaurants t WHERE t.id = $1`, []any{key.RestaurantID}, nil
	}
	if key.RestaurantID == "" {
		return "", nil, domain.NewValidationError("restaurant_id", "is required")
	}
	args := []any{key.RestaurantID}

	switch key.Kind {
	case domain.KindCategories:
		return `SELECT to_jsonb(t) FROM menu_categories t WHERE t.restaurant_id = $1 ORDER BY t.position, t.name`, args, nil
	case domain.KindMenuItems:
		return `SELECT to_jsonb(t) FROM menu_items t WHERE t.restaurant_id = $1 ORDER BY t.name, t.id`, args, nil
	case domain.KindOrders:
		if key.Scope != "" {
			return orderSelect + ` WHERE o.restaurant_id = $1 AND o.table_id = $2 ORDER BY o.created_at DESC`,
				append(args, key.Scope), nil
		}
		return orderSelect + ` WHERE o.restaurant_id = $1 ORDER BY o.created_at DESC`, args, nil
	case domain.KindOrderItems:
		return `SELECT to_jsonb(t) FROM order_items t WHERE t.restaurant_id = $1 ORDER BY t.order_id, t.name`, args, nil
	case domain.KindStaff:
		return `SELECT to_jsonb(t) FROM staff t WHERE t.restaurant_id = $1 ORDER BY t.name`, args, nil
	case domain.KindInvoices:
		return `SELECT to_jsonb(t) FROM invoices t WHERE t.restaurant_id = $1 ORDER BY t.issued_at DESC`, args, nil
	case domain.KindCustomers:
		return `SELECT to_jsonb(t) FROM customers t WHERE t.restaurant_id = $1 ORDER BY t.name`, args, nil
	}
	return "", nil, domain.NewValidationError("kind", fmt.Sprintf("unknown collection %q", key.Kind))
}

func (r *Repository) List(ctx context.Context, key domain.QueryKey) ([]domain.Record, error) {
	query, args, err := listQuery(key)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list "+string(key.Kind), err)
	}
	defer rows.Close()

	out := make([]domain.Record, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", key.Kind, err)
		}
		rec, err := domain.DecodeRecord(key.Kind, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list "+string(key.Kind), err)
	}
	return out, nil
}

func (r *Repository) GetOrder(ctx context.Context, restaurantID, orderID string) (domain.Order, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, orderSelect+` WHERE o.id = $1 AND o.restaurant_id = $2`, orderID, restaurantID).Scan(&raw)
	if err != nil {
		return domain.Order{}, mapErr("get order", err)
	}
	rec, err := domain.DecodeRecord(domain.KindOrders, raw)
	if err != nil {
		return domain.Order{}, err
	}
	return rec.(domain.Order), nil
}

func (r *Repository) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, mapErr("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (
			id, restaurant_id, table_id, customer_name, customer_phone, notes, status, total, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8, COALESCE($9, now()), now())
		RETURNING created_at, updated_at
	`, order.ID, order.RestaurantID, order.TableID, order.CustomerName, order.CustomerPhone,
		order.Notes, order.Status, order.Total, timeOrNil(order.CreatedAt)).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return domain.Order{}, mapErr("insert order", err)
	}

	items := make([]domain.OrderItem, len(order.Items))
	for i, it := range order.Items {
		it.OrderID = order.ID
		it.RestaurantID = order.RestaurantID
		if it.Status == "" {
			it.Status = domain.ItemPending
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, restaurant_id, menu_item_id, name, quantity, unit_price, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, it.ID, it.OrderID, it.RestaurantID, it.MenuItemID, it.Name, it.Quantity, it.UnitPrice, it.Status); err != nil {
			return domain.Order{}, mapErr("insert order item", err)
		}
		items[i] = it
	}
	order.Items = items

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, mapErr("commit tx", err)
	}
	return order, nil
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, restaurantID, orderID string, status domain.OrderStatus) (domain.Order, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND restaurant_id = $2
	`, orderID, restaurantID, status)
	if err != nil {
		return domain.Order{}, mapErr("update order", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Order{}, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	return r.GetOrder(ctx, restaurantID, orderID)
}

func (r *Repository) UpdateOrderItemStatus(ctx context.Context, restaurantID, itemID string, status domain.ItemStatus) (domain.OrderItem, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		UPDATE order_items SET status = $3
		WHERE id = $1 AND restaurant_id = $2
		RETURNING to_jsonb(order_items)
	`, itemID, restaurantID, status).Scan(&raw)
	if err != nil {
		return domain.OrderItem{}, mapErr("update order item", err)
	}
	rec, err := domain.DecodeRecord(domain.KindOrderItems, raw)
	if err != nil {
		return domain.OrderItem{}, err
	}
	return rec.(domain.OrderItem), nil
}

func (r *Repository) SaveCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		INSERT INTO menu_categories (id, restaurant_id, name, position, created_at)
		VALUES ($1,$2,$3,$4, COALESCE($5, now()))
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			position = EXCLUDED.position
		WHERE menu_categories.restaurant_id = EXCLUDED.restaurant_id
		RETURNING to_jsonb(menu_categories)
	`, c.ID, c.RestaurantID, c.Name, c.Position, timeOrNil(c.CreatedAt)).Scan(&raw)
	if err != nil {
		return domain.Category{}, mapErr("save category", err)
	}
	rec, err := domain.DecodeRecord(domain.KindCategories, raw)
	if err != nil {
		return domain.Category{}, err
	}
	return rec.(domain.Category), nil
}

// DeleteCategory relies on ON DELETE SET NULL to uncategorize the items.
func (r *Repository) DeleteCategory(ctx context.Context, restaurantID, id string) error {
	return r.delete(ctx, "menu_categories", restaurantID, id)
}

func (r *Repository) SaveMenuItem(ctx context.Context, m domain.MenuItem) (domain.MenuItem, error) {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		INSERT INTO menu_items (
			id, restaurant_id, category_id, name, description, price, image_url,
			is_available, is_vegetarian, tags, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, COALESCE($11, now()), now())
		ON CONFLICT (id) DO UPDATE SET
			category_id = EXCLUDED.category_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			image_url = EXCLUDED.image_url,
			is_available = EXCLUDED.is_available,
			is_vegetarian = EXCLUDED.is_vegetarian,
			tags = EXCLUDED.tags,
			updated_at = now()
		WHERE menu_items.restaurant_id = EXCLUDED.restaurant_id
		RETURNING to_jsonb(menu_items)
	`, m.ID, m.RestaurantID, m.CategoryID, m.Name, m.Description, m.Price, m.ImageURL,
		m.IsAvailable, m.IsVegetarian, tags, timeOrNil(m.CreatedAt)).Scan(&raw)
	if err != nil {
		return domain.MenuItem{}, mapErr("save menu item", err)
	}
	rec, err := domain.DecodeRecord(domain.KindMenuItems, raw)
	if err != nil {
		return domain.MenuItem{}, err
	}
	return rec.(domain.MenuItem), nil
}

func (r *Repository) DeleteMenuItem(ctx context.Context, restaurantID, id string) error {
	return r.delete(ctx, "menu_items", restaurantID, id)
}

// table is always one of the constants above, never user input.
func (r *Repository) delete(ctx context.Context, table, restaurantID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1 AND restaurant_id = $2`, id, restaurantID)
	if err != nil {
		return mapErr("delete from "+table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", table, id, domain.ErrNotFound)
	}
	return nil
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// mapErr translates driver errors into the domain taxonomy.
func mapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", op, domain.ErrConflict)
		case "23503":
			return fmt.Errorf("%s: %w", op, domain.NewValidationError(pgErr.ColumnName, "references a missing row"))
		case "23514", "22P02", "22003":
			return fmt.Errorf("%s: %w", op, domain.NewValidationError(pgErr.ColumnName, pgErr.Message))
		case "42501":
			return fmt.Errorf("%s: %w", op, domain.ErrForbidden)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrUnavailable, err))
}

var _ outbound.Repository = (*Repository)(nil)
