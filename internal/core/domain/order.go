package domain

import (
	"regexp"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderServed    OrderStatus = "served"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

var orderFlow = map[OrderStatus]OrderStatus{
	OrderPending:   OrderPreparing,
	OrderPreparing: OrderReady,
	OrderReady:     OrderServed,
	OrderServed:    OrderCompleted,
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPreparing, OrderReady, OrderServed, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// ValidStatusTransition allows one step forward, or cancellation of a live order.
func ValidStatusTransition(from, to OrderStatus) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == OrderCancelled {
		return true
	}
	return orderFlow[from] == to
}

type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemPrepared ItemStatus = "prepared"
	ItemServed   ItemStatus = "served"
)

type OrderItem struct {
	ID           string     `json:"id"`
	OrderID      string     `json:"order_id"`
	RestaurantID string     `json:"restaurant_id"`
	MenuItemID   string     `json:"menu_item_id"`
	Name         string     `json:"name"`
	Quantity     int        `json:"quantity"`
	UnitPrice    float64    `json:"unit_price"`
	Status       ItemStatus `json:"status"`
}

func (i OrderItem) RecordID() string           { return i.ID }
func (i OrderItem) RecordRestaurantID() string { return i.RestaurantID }

func (i OrderItem) LineTotal() float64 { return float64(i.Quantity) * i.UnitPrice }

type Order struct {
	ID            string      `json:"id"`
	RestaurantID  string      `json:"restaurant_id"`
	TableID       string      `json:"table_id"`
	CustomerName  string      `json:"customer_name"`
	CustomerPhone string      `json:"customer_phone"`
	Notes         string      `json:"notes"`
	Status        OrderStatus `json:"status"`
	Total         float64     `json:"total"`
	Items         []OrderItem `json:"items"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func (o Order) RecordID() string           { return o.ID }
func (o Order) RecordRestaurantID() string { return o.RestaurantID }

// ItemsTotal sums the embedded lines.
func (o Order) ItemsTotal() float64 {
	var sum float64
	for _, it := range o.Items {
		sum += it.LineTotal()
	}
	return sum
}

func (o Order) Validate() error {
	if o.RestaurantID == "" {
		return NewValidationError("restaurant_id", "is required")
	}
	if o.TableID == "" {
		return NewValidationError("table_id", "is required")
	}
	if len(o.Items) == 0 {
		return NewValidationError("items", "order has no items")
	}
	for _, it := range o.Items {
		if it.Quantity < 1 {
			return NewValidationError("quantity", "must be at least 1")
		}
		if it.MenuItemID == "" {
			return NewValidationError("menu_item_id", "is required")
		}
	}
	if o.Status != "" && !o.Status.Valid() {
		return NewValidationError("status", "unknown status "+string(o.Status))
	}
	return nil
}

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 \-]{5,18}$`)

// CustomerInfo is what a diner types at checkout.
type CustomerInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

func (c CustomerInfo) Normalize() CustomerInfo {
	return CustomerInfo{
		Name:  strings.TrimSpace(c.Name),
		Phone: strings.TrimSpace(c.Phone),
		Notes: strings.TrimSpace(c.Notes),
	}
}

func (c CustomerInfo) Validate() error {
	if c.Name == "" {
		return NewValidationError("name", "is required")
	}
	if len(c.Name) > 80 {
		return NewValidationError("name", "is too long")
	}
	if c.Phone != "" && !phonePattern.MatchString(c.Phone) {
		return NewValidationError("phone", "is not a valid phone number")
	}
	if len(c.Notes) > 500 {
		return NewValidationError("notes", "is too long")
	}
	return nil
}
