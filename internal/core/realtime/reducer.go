package realtime

import (
	"menu360/internal/core/domain"

	"github.com/tidwall/gjson"
)

// Change is a decoded ChangeEvent. Record is nil for deletes.
type Change struct {
	Op           domain.ChangeOp
	Kind         domain.Kind
	Record       domain.Record
	ID           string
	RestaurantID string
	// OrderID is set for order_items changes when the row carries it.
	OrderID string
}

// Decode reshapes and decodes the row carried by ev.
func Decode(ev domain.ChangeEvent) (Change, error) {
	ch := Change{Op: ev.Op, Kind: ev.Table}

	switch ev.Op {
	case domain.OpInsert, domain.OpUpdate:
		if len(ev.New) == 0 {
			return Change{}, domain.NewValidationError("new", "missing row for "+string(ev.Op))
		}
		raw, err := Reshape(ev.Table, ev.New)
		if err != nil {
			return Change{}, err
		}
		rec, err := domain.DecodeRecord(ev.Table, raw)
		if err != nil {
			return Change{}, domain.NewValidationError("new", err.Error())
		}
		ch.Record = rec
		ch.ID = rec.RecordID()
		ch.RestaurantID = rec.RecordRestaurantID()
		if it, ok := rec.(domain.OrderItem); ok {
			ch.OrderID = it.OrderID
		}
	case domain.OpDelete:
		old := gjson.ParseBytes(ev.Old)
		ch.ID = old.Get("id").String()
		ch.RestaurantID = old.Get("restaurant_id").String()
		ch.OrderID = old.Get("order_id").String()
	default:
		return Change{}, domain.NewValidationError("op", "unsupported operation "+string(ev.Op))
	}

	if ch.ID == "" {
		return Change{}, domain.NewValidationError("id", "row has no id")
	}
	return ch, nil
}

// Reduce applies one change to a cache snapshot and returns the next snapshot.
// The input snapshot and its lists are never mutated; unchanged lists are shared.
func Reduce(snap domain.Snapshot, ch Change) domain.Snapshot {
	next := snap.Clone()

	switch ch.Op {
	case domain.OpInsert:
		for key, list := range snap {
			if key.Kind == ch.Kind && keyMatches(key, ch.Record) {
				next[key], _ = domain.InsertRecord(list, ch.Record)
			}
		}
	case domain.OpUpdate:
		for key, list := range snap {
			if key.Kind == ch.Kind && keyMatches(key, ch.Record) {
				next[key], _ = domain.ReplaceRecord(list, keepItems(list, ch.Record))
			}
		}
	case domain.OpDelete:
		for key, list := range snap {
			if key.Kind == ch.Kind && tenantMatches(key, ch.RestaurantID) {
				next[key], _ = domain.RemoveRecord(list, ch.ID)
			}
		}
		if ch.Kind == domain.KindCategories {
			uncategorize(snap, next, ch.RestaurantID, ch.ID)
		}
	}

	if ch.Kind == domain.KindOrderItems {
		patchEmbeddedItem(snap, next, ch)
	}
	return next
}

// keepItems carries the embedded items of the cached order over to an order
// row that has none. Provider rows for orders never include items.
func keepItems(list []domain.Record, rec domain.Record) domain.Record {
	o, ok := rec.(domain.Order)
	if !ok || o.Items != nil {
		return rec
	}
	i := domain.IndexOf(list, o.ID)
	if i < 0 {
		return rec
	}
	if prev, ok := list[i].(domain.Order); ok {
		o.Items = prev.Items
	}
	return o
}

// uncategorize nulls category_id on cached items of the deleted category.
// The items stay in their lists.
func uncategorize(snap, next domain.Snapshot, restaurantID, categoryID string) {
	for key, list := range snap {
		if key.Kind != domain.KindMenuItems || !tenantMatches(key, restaurantID) {
			continue
		}
		var out []domain.Record
		for i, rec := range list {
			m, ok := rec.(domain.MenuItem)
			if !ok || !m.InCategory(categoryID) {
				continue
			}
			if out == nil {
				out = make([]domain.Record, len(list))
				copy(out, list)
			}
			m.CategoryID = nil
			out[i] = m
		}
		if out != nil {
			next[key] = out
		}
	}
}

// patchEmbeddedItem keeps the items embedded in cached orders in step with
// order_items changes.
func patchEmbeddedItem(snap, next domain.Snapshot, ch Change) {
	for key, list := range snap {
		if key.Kind != domain.KindOrders || !tenantMatches(key, ch.RestaurantID) {
			continue
		}
		var out []domain.Record
		for i, rec := range list {
			o, ok := rec.(domain.Order)
			if !ok || (ch.OrderID != "" && o.ID != ch.OrderID) {
				continue
			}
			items, changed := patchItems(o.Items, ch)
			if !changed {
				continue
			}
			if out == nil {
				out = make([]domain.Record, len(list))
				copy(out, list)
			}
			o.Items = items
			out[i] = o
		}
		if out != nil {
			next[key] = out
		}
	}
}

func patchItems(items []domain.OrderItem, ch Change) ([]domain.OrderItem, bool) {
	idx := -1
	for i, it := range items {
		if it.ID == ch.ID {
			idx = i
			break
		}
	}

	switch ch.Op {
	case domain.OpInsert:
		it, ok := ch.Record.(domain.OrderItem)
		if idx >= 0 || !ok || ch.OrderID == "" {
			return items, false
		}
		out := make([]domain.OrderItem, len(items), len(items)+1)
		copy(out, items)
		return append(out, it), true
	case domain.OpUpdate:
		it, ok := ch.Record.(domain.OrderItem)
		if idx < 0 || !ok {
			return items, false
		}
		out := make([]domain.OrderItem, len(items))
		copy(out, items)
		out[idx] = it
		return out, true
	case domain.OpDelete:
		if idx < 0 {
			return items, false
		}
		out := make([]domain.OrderItem, 0, len(items)-1)
		out = append(out, items[:idx]...)
		return append(out, items[idx+1:]...), true
	}
	return items, false
}

// keyMatches checks tenant and, for per-table order lists, the table scope.
func keyMatches(key domain.QueryKey, rec domain.Record) bool {
	if !tenantMatches(key, rec.RecordRestaurantID()) {
		return false
	}
	if key.Scope == "" {
		return true
	}
	if o, ok := rec.(domain.Order); ok {
		return o.TableID == key.Scope
	}
	return true
}

// An unknown restaurant (delete rows often carry only the primary key) matches every tenant.
func tenantMatches(key domain.QueryKey, restaurantID string) bool {
	return restaurantID == "" || key.RestaurantID == restaurantID
}

// lookup finds the cached record with the given id in any list of kind.
func lookup(snap domain.Snapshot, kind domain.Kind, id string) (domain.Record, bool) {
	for key, list := range snap {
		if key.Kind != kind {
			continue
		}
		if i := domain.IndexOf(list, id); i >= 0 {
			return list[i], true
		}
	}
	return nil, false
}
