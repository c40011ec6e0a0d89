package httpin

import (
	"context"
	"errors"
	"net/http"

	"menu360/internal/core/domain"
	"menu360/internal/ports/inbound"

	"github.com/gorilla/mux"
)

type cartView struct {
	RestaurantID string            `json:"restaurant_id"`
	TableID      string            `json:"table_id"`
	Lines        []domain.CartLine `json:"lines"`
	Totals       domain.CartTotals `json:"totals"`
	Version      uint64            `json:"version"`
}

func viewOf(s domain.CartSession, c inbound.Cart) cartView {
	lines := c.Lines()
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return cartView{
		RestaurantID: s.RestaurantID,
		TableID:      s.TableID,
		Lines:        lines,
		Totals:       c.Totals(),
		Version:      c.Version(),
	}
}

// withCart resolves the session's cart and hands it to fn. On success the
// updated cart is written back.
func (h *Handlers) withCart(w http.ResponseWriter, r *http.Request, fn func(domain.CartSession, inbound.Cart) error) {
	s, err := h.sessions.CartSession(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	c, err := h.onCart(r.Context(), s, func(c inbound.Cart) error {
		if fn == nil {
			return nil
		}
		return fn(s, c)
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, viewOf(s, c), http.StatusOK)
}

func (h *Handlers) getCart(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, nil)
}

func (h *Handlers) clearCart(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(_ domain.CartSession, c inbound.Cart) error {
		return c.Clear(r.Context())
	})
}

// onCart runs fn against the session's cart. A store evicted between lookup
// and use is resolved again once.
func (h *Handlers) onCart(ctx context.Context, s domain.CartSession, fn func(inbound.Cart) error) (inbound.Cart, error) {
	for attempt := 0; ; attempt++ {
		c, err := h.carts.Cart(ctx, s)
		if err != nil {
			return nil, err
		}
		err = fn(c)
		if err == nil {
			return c, nil
		}
		if attempt > 0 || !errors.Is(err, domain.ErrCartReloaded) {
			return nil, err
		}
	}
}

type addItemRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

func (h *Handlers) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.ItemID == "" || req.Quantity < 0 {
		writeError(w, h.log, domain.NewValidationError("item_id", "item and a positive quantity are required"))
		return
	}
	h.withCart(w, r, func(s domain.CartSession, c inbound.Cart) error {
		item, err := h.catalog.FindMenuItem(r.Context(), s.RestaurantID, req.ItemID)
		if err != nil {
			return err
		}
		return c.AddN(r.Context(), item, req.Quantity)
	})
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handlers) setCartQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.withCart(w, r, func(_ domain.CartSession, c inbound.Cart) error {
		return c.SetQuantity(r.Context(), mux.Vars(r)["itemID"], req.Quantity)
	})
}

func (h *Handlers) removeCartItem(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(_ domain.CartSession, c inbound.Cart) error {
		return c.Remove(r.Context(), mux.Vars(r)["itemID"])
	})
}

func (h *Handlers) submitCart(w http.ResponseWriter, r *http.Request) {
	var info domain.CustomerInfo
	if err := decodeJSON(r, &info); err != nil {
		writeError(w, h.log, err)
		return
	}
	s, err := h.sessions.CartSession(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var order domain.Order
	_, err = h.onCart(r.Context(), s, func(c inbound.Cart) error {
		placed, serr := c.Submit(r.Context(), info)
		order = placed
		return serr
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, order, http.StatusCreated)
}
