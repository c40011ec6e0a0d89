package domain

import (
	"fmt"
	"strings"
)

// Kind names a record collection. Values match the backend table names.
type Kind string

const (
	KindRestaurants Kind = "restaurants"
	KindCategories  Kind = "menu_categories"
	KindMenuItems   Kind = "menu_items"
	KindOrders      Kind = "orders"
	KindOrderItems  Kind = "order_items"
	KindStaff       Kind = "staff"
	KindInvoices    Kind = "invoices"
	KindCustomers   Kind = "customers"
)

var AllKinds = []Kind{
	KindRestaurants,
	KindCategories,
	KindMenuItems,
	KindOrders,
	KindOrderItems,
	KindStaff,
	KindInvoices,
	KindCustomers,
}

var kindAliases = map[string]Kind{
	"categories": KindCategories,
	"items":      KindMenuItems,
	"menu":       KindMenuItems,
}

// ParseKind accepts table names, their dashed forms and a few short aliases.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	if k, ok := kindAliases[s]; ok {
		return k, nil
	}
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", NewValidationError("kind", fmt.Sprintf("unknown collection %q", s))
}

// StaffOnly reports whether the collection is hidden from anonymous customers.
func (k Kind) StaffOnly() bool {
	switch k {
	case KindOrders, KindOrderItems, KindStaff, KindInvoices, KindCustomers:
		return true
	}
	return false
}
