package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"menu360/internal/core/domain"

	"github.com/tidwall/gjson"
)

// APIError keeps the provider's answer for logs while unwrapping to the
// domain taxonomy.
type APIError struct {
	Status  int
	Code    string
	Message string
	kind    error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase: %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.kind }

// statusError maps a non-2xx response. PostgREST error codes win over the
// HTTP status when both are present.
func statusError(status int, body []byte) error {
	res := gjson.ParseBytes(body)
	e := &APIError{
		Status:  status,
		Code:    res.Get("code").String(),
		Message: firstNonEmpty(res.Get("message").String(), res.Get("error").String(), res.Get("msg").String(), http.StatusText(status)),
	}

	switch e.Code {
	case "PGRST116":
		e.kind = domain.ErrNotFound
	case "23505":
		e.kind = domain.ErrConflict
	case "23503", "23514", "22P02":
		e.kind = domain.NewValidationError("", e.Message)
	case "42501":
		e.kind = domain.ErrForbidden
	}
	if e.kind != nil {
		return e
	}

	switch {
	case status == http.StatusNotFound || status == http.StatusNotAcceptable:
		e.kind = domain.ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.kind = domain.ErrForbidden
	case status == http.StatusConflict:
		e.kind = domain.ErrConflict
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || status == http.StatusRequestEntityTooLarge:
		e.kind = domain.NewValidationError("", e.Message)
	default:
		// 429, 5xx and anything unexpected
		e.kind = domain.ErrUnavailable
	}
	return e
}

func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("supabase: %w", ctxErr)
	}
	return fmt.Errorf("supabase: %w", errors.Join(domain.ErrUnavailable, err))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
