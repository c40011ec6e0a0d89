package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"menu360/internal/core/domain"

	"github.com/tidwall/gjson"
)

// Providers deliver some columns in a wire shape that differs from the record
// shape: numerics as strings, json/array columns as encoded text, booleans as t/f.
var (
	numericFields = map[domain.Kind][]string{
		domain.KindCategories: {"position"},
		domain.KindMenuItems:  {"price"},
		domain.KindOrders:     {"total"},
		domain.KindOrderItems: {"quantity", "unit_price"},
		domain.KindInvoices:   {"subtotal", "tax", "total"},
		domain.KindCustomers:  {"visits"},
	}
	encodedFields = map[domain.Kind][]string{
		domain.KindMenuItems: {"tags"},
		domain.KindOrders:    {"items"},
	}
	boolFields = map[domain.Kind][]string{
		domain.KindMenuItems: {"is_available", "is_vegetarian"},
		domain.KindStaff:     {"active"},
	}
)

// Reshape rewrites a provider row into the JSON shape domain records decode from.
func Reshape(kind domain.Kind, raw []byte) ([]byte, error) {
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return nil, domain.NewValidationError("record", "row is not a JSON object")
	}

	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("reshape %s: %w", kind, err)
	}

	for _, f := range numericFields[kind] {
		if s, ok := row[f].(string); ok {
			n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, domain.NewValidationError(f, "not a number: "+s)
			}
			row[f] = n
		}
	}
	for _, f := range encodedFields[kind] {
		if s, ok := row[f].(string); ok {
			v, err := decodeEncoded(s)
			if err != nil {
				return nil, domain.NewValidationError(f, err.Error())
			}
			row[f] = v
		}
	}
	for _, f := range boolFields[kind] {
		if s, ok := row[f].(string); ok {
			row[f] = s == "t" || strings.EqualFold(s, "true")
		}
	}
	if kind == domain.KindOrders {
		if items, ok := row["items"].([]any); ok {
			for _, it := range items {
				if m, ok := it.(map[string]any); ok {
					reshapeMap(domain.KindOrderItems, m)
				}
			}
		}
	}

	return json.Marshal(row)
}

func reshapeMap(kind domain.Kind, m map[string]any) {
	for _, f := range numericFields[kind] {
		if s, ok := m[f].(string); ok {
			if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				m[f] = n
			}
		}
	}
}

// decodeEncoded accepts JSON text or a Postgres array literal such as {a,"b c"}.
func decodeEncoded(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if s == "{}" {
		return []any{}, nil
	}
	if gjson.Valid(s) {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		body := strings.TrimSpace(s[1 : len(s)-1])
		if body == "" {
			return []any{}, nil
		}
		parts := strings.Split(body, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.Trim(strings.TrimSpace(p), `"`))
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot decode %q", s)
}
