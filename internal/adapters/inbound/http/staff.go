package httpin

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"menu360/internal/core/domain"

	"github.com/gorilla/mux"
)

const maxUploadBody = 6 << 20

// staffRoute checks access to the {rid} tenant and returns its id.
func (h *Handlers) staffRoute(w http.ResponseWriter, r *http.Request) (string, bool) {
	rid := mux.Vars(r)["rid"]
	if _, err := requireStaff(r.Context(), rid); err != nil {
		writeError(w, h.log, err)
		return "", false
	}
	return rid, true
}

type statusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	rid, ok := h.staffRoute(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	order, err := h.orders.UpdateStatus(r.Context(), rid, mux.Vars(r)["id"], req.Status)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, order, http.StatusOK)
}

func (h *Handlers) markItemPrepared(w http.ResponseWriter, r *http.Request) {
	rid, ok := h.staffRoute(w, r)
	if !ok {
		return
	}
	item, err := h.orders.MarkItemPrepared(r.Context(), rid, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, item, http.StatusOK)
}

// savedStatus is 201 for POST (create) and 200 for PUT (replace).
func savedStatus(r *http.Request) int {
	if r.Method == http.MethodPost {
		return http.StatusCreated
	}
	return http.StatusOK
}

func (h *Handlers) saveCategory(w http.ResponseWriter, r *http.Request) {
	rid, ok := h.staffRoute(w, r)
	if !ok {
		return
	}
	var c domain.Category
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, h.log, err)
		return
	}
	c.RestaurantID = rid
	if id := mux.Vars(r)["id"]; id != "" {
		c.ID = id
	}
	saved, err := h.menu.SaveCategory(r.Context(), c)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, saved, savedStatus(r))
}

func (h *Handlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	rid, ok := h.staffRoute(w, r)
	if !ok {
		return
	}
	if err := h.menu.DeleteCategory(r.Context(), rid, mux.Vars(r)["id"]); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) saveMenuItem(w http.ResponseWriter, r *http.Request) {
	rid, ok := h.staffRoute(w, r)
	if !ok {
		return
	}
	var m domain.MenuItem
	if err := decodeJSON(r, &m); err != nil {
		writeError(w, h.log, err)
		return
	}
	m.RestaurantID = rid
	if id := mux.Vars(r)["id"]; id != "" {
		m.ID = id
	}
	saved, err := h.menu.SaveMenuItem(r.Context(), m)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, saved, savedStatus(r))
}

func (h *Handlers) deleteMenuItem(w http.ResponseWriter, r *http.Request) {
	rid, ok := h.staffRoute(w, r)
	if !ok {
		return
	}
	if err := h.menu.DeleteMenuItem(r.Context(), rid, mux.Vars(r)["id"]); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadItemImage takes a multipart form with the file in the "image" field.
func (h *Handlers) uploadItemImage(w http.ResponseWriter, r *http.Request) {
	rid, ok := h.staffRoute(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	file, header, err := r.FormFile("image")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, h.log, domain.NewValidationError("image", "file is too large"))
			return
		}
		writeError(w, h.log, domain.NewValidationError("image", "multipart field \"image\" is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, h.log, fmt.Errorf("read upload: %w", err))
		return
	}
	item, err := h.menu.UploadItemImage(r.Context(), rid, mux.Vars(r)["id"],
		header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, item, http.StatusOK)
}

func (h *Handlers) bootstrapStorage(w http.ResponseWriter, r *http.Request) {
	if _, err := requireStaff(r.Context(), ""); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.menu.BootstrapStorage(r.Context()); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type invalidateRequest struct {
	Kind         string `json:"kind"`
	RestaurantID string `json:"restaurant_id"`
	Scope        string `json:"scope"`
}

// invalidateCache drops one key, or every key when no kind is given. Dropping
// everything needs an admin.
func (h *Handlers) invalidateCache(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.log, err)
			return
		}
	}
	if req.Kind == "" {
		if _, err := requireStaff(r.Context(), ""); err != nil {
			writeError(w, h.log, err)
			return
		}
		h.catalog.InvalidateAll(r.Context())
		w.WriteHeader(http.StatusNoContent)
		return
	}

	kind, err := domain.ParseKind(req.Kind)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if _, err := requireStaff(r.Context(), req.RestaurantID); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.catalog.Invalidate(r.Context(), domain.NewQueryKey(kind, req.RestaurantID).WithScope(req.Scope))
	w.WriteHeader(http.StatusNoContent)
}
