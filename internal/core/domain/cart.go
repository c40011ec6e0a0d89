package domain

import "time"

// CartSession identifies one browsing session at one table.
type CartSession struct {
	RestaurantID string `json:"restaurant_id"`
	TableID      string `json:"table_id"`
	SessionID    string `json:"session_id"`
}

func (s CartSession) Validate() error {
	if s.RestaurantID == "" || s.TableID == "" {
		return NewValidationError("table", "scan the table QR code first")
	}
	if s.SessionID == "" {
		return NewValidationError("session", "is required")
	}
	return nil
}

func (s CartSession) Key() string {
	return s.RestaurantID + ":" + s.TableID + ":" + s.SessionID
}

// CartLine is one (menu item, quantity) pair of a cart.
type CartLine struct {
	ItemID    string  `json:"item_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

type CartTotals struct {
	Items int     `json:"items"`
	Price float64 `json:"price"`
}

// TableBinding is the last restaurant/table a session scanned.
type TableBinding struct {
	RestaurantID string    `json:"restaurant_id"`
	TableID      string    `json:"table_id"`
	ScannedAt    time.Time `json:"scanned_at"`
}

// DataSource tells where a list came from.
type DataSource string

const (
	SourceLive    DataSource = "live"
	SourceFixture DataSource = "fixture"
)
