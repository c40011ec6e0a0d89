package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is anything the query cache can hold.
type Record interface {
	RecordID() string
	// RecordRestaurantID returns the owning tenant, or "" when the row does not say.
	RecordRestaurantID() string
}

type Restaurant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	OwnerID   string    `json:"owner_id"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

func (r Restaurant) RecordID() string           { return r.ID }
func (r Restaurant) RecordRestaurantID() string { return r.ID }

type Category struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	Name         string    `json:"name"`
	Position     int       `json:"position"`
	CreatedAt    time.Time `json:"created_at"`
}

func (c Category) RecordID() string           { return c.ID }
func (c Category) RecordRestaurantID() string { return c.RestaurantID }

func (c Category) Validate() error {
	if c.RestaurantID == "" {
		return NewValidationError("restaurant_id", "is required")
	}
	if c.Name == "" {
		return NewValidationError("name", "is required")
	}
	return nil
}

// MenuItem is a dish on the menu. A nil CategoryID means "uncategorized".
type MenuItem struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	CategoryID   *string   `json:"category_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Price        float64   `json:"price"`
	ImageURL     string    `json:"image_url"`
	IsAvailable  bool      `json:"is_available"`
	IsVegetarian bool      `json:"is_vegetarian"`
	Tags         []string  `json:"tags"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (m MenuItem) RecordID() string           { return m.ID }
func (m MenuItem) RecordRestaurantID() string { return m.RestaurantID }

func (m MenuItem) InCategory(categoryID string) bool {
	return m.CategoryID != nil && *m.CategoryID == categoryID
}

func (m MenuItem) Validate() error {
	if m.RestaurantID == "" {
		return NewValidationError("restaurant_id", "is required")
	}
	if m.Name == "" {
		return NewValidationError("name", "is required")
	}
	if m.Price < 0 {
		return NewValidationError("price", "must not be negative")
	}
	return nil
}

type Invoice struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	OrderID      string    `json:"order_id"`
	Number       string    `json:"number"`
	Subtotal     float64   `json:"subtotal"`
	Tax          float64   `json:"tax"`
	Total        float64   `json:"total"`
	Status       string    `json:"status"`
	IssuedAt     time.Time `json:"issued_at"`
}

func (i Invoice) RecordID() string           { return i.ID }
func (i Invoice) RecordRestaurantID() string { return i.RestaurantID }

type StaffMember struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s StaffMember) RecordID() string           { return s.ID }
func (s StaffMember) RecordRestaurantID() string { return s.RestaurantID }

type Customer struct {
	ID           string     `json:"id"`
	RestaurantID string     `json:"restaurant_id"`
	Name         string     `json:"name"`
	Phone        string     `json:"phone"`
	Email        string     `json:"email"`
	Visits       int        `json:"visits"`
	LastVisitAt  *time.Time `json:"last_visit_at"`
}

func (c Customer) RecordID() string           { return c.ID }
func (c Customer) RecordRestaurantID() string { return c.RestaurantID }

// DecodeRecord unmarshals one row of the given collection.
func DecodeRecord(kind Kind, raw []byte) (Record, error) {
	switch kind {
	case KindRestaurants:
		return decodeAs[Restaurant](raw)
	case KindCategories:
		return decodeAs[Category](raw)
	case KindMenuItems:
		return decodeAs[MenuItem](raw)
	case KindOrders:
		return decodeAs[Order](raw)
	case KindOrderItems:
		return decodeAs[OrderItem](raw)
	case KindStaff:
		return decodeAs[StaffMember](raw)
	case KindInvoices:
		return decodeAs[Invoice](raw)
	case KindCustomers:
		return decodeAs[Customer](raw)
	}
	return nil, fmt.Errorf("decode record: unknown kind %q", kind)
}

// DecodeRecords unmarshals a JSON array of rows.
func DecodeRecords(kind Kind, raw []byte) ([]Record, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode %s rows: %w", kind, err)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := DecodeRecord(kind, row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeAs[T Record](raw []byte) (Record, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}
