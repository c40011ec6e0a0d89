package httpin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"menu360/internal/core/domain"

	"github.com/sirupsen/logrus"
)

const maxJSONBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Toast string `json:"toast"`
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// statusOf maps the domain error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrSubmitInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// toastText is the best-effort human explanation shown next to a failure.
func toastText(status int, err error) string {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	switch status {
	case http.StatusNotFound:
		return "That item no longer exists."
	case http.StatusForbidden:
		return "You are not allowed to do that."
	case http.StatusConflict:
		if errors.Is(err, domain.ErrSubmitInProgress) {
			return "Your order is already on its way."
		}
		return "Someone else changed this first. Refresh and try again."
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return "We could not reach the kitchen. Please try again."
	case http.StatusTooManyRequests:
		return "Slow down a little and try again."
	case http.StatusUnauthorized:
		return "Please sign in again."
	}
	return "Something went wrong."
}

func writeError(w http.ResponseWriter, log *logrus.Entry, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error(), Toast: toastText(status, err)}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
	}
	if status >= http.StatusInternalServerError && log != nil {
		log.WithError(err).Error("[http] request failed")
	}
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	writeJSON(w, body, status)
}

func writeStatus(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, errorBody{Error: msg, Toast: toastText(status, errors.New(msg))}, status)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return nil
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
