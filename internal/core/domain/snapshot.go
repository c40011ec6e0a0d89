package domain

import "strings"

// QueryKey addresses one cached list. Scope narrows a tenant list further
// (the table id for per-table order lists) and is empty otherwise.
type QueryKey struct {
	Kind         Kind
	RestaurantID string
	Scope        string
}

func NewQueryKey(kind Kind, restaurantID string) QueryKey {
	return QueryKey{Kind: kind, RestaurantID: restaurantID}
}

func (k QueryKey) WithScope(scope string) QueryKey {
	k.Scope = scope
	return k
}

func (k QueryKey) String() string {
	parts := []string{string(k.Kind), k.RestaurantID}
	if k.Scope != "" {
		parts = append(parts, k.Scope)
	}
	return strings.Join(parts, "/")
}

// Snapshot is a point-in-time view of the query cache.
// Lists are shared with the cache and must be treated as read-only.
type Snapshot map[QueryKey][]Record

// Clone copies the map, not the lists.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func IndexOf(list []Record, id string) int {
	for i, r := range list {
		if r.RecordID() == id {
			return i
		}
	}
	return -1
}

// The helpers below never mutate their input; they return a fresh slice and
// whether anything changed.

func InsertRecord(list []Record, rec Record) ([]Record, bool) {
	if IndexOf(list, rec.RecordID()) >= 0 {
		return list, false
	}
	out := make([]Record, len(list), len(list)+1)
	copy(out, list)
	return append(out, rec), true
}

func ReplaceRecord(list []Record, rec Record) ([]Record, bool) {
	i := IndexOf(list, rec.RecordID())
	if i < 0 {
		return list, false
	}
	out := make([]Record, len(list))
	copy(out, list)
	out[i] = rec
	return out, true
}

func RemoveRecord(list []Record, id string) ([]Record, bool) {
	i := IndexOf(list, id)
	if i < 0 {
		return list, false
	}
	out := make([]Record, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...), true
}
