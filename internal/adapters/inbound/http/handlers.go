package httpin

import (
	"html/template"
	"net/http"

	"menu360/internal/core/domain"
	"menu360/internal/ports/inbound"
	"menu360/internal/web"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// DataSourceHeader tells clients whether a list is live data or demo fixtures.
const DataSourceHeader = "X-Menu360-Data-Source"

type Deps struct {
	Catalog  inbound.CatalogUseCase
	Orders   inbound.OrderUseCase
	Menu     inbound.MenuUseCase
	Carts    inbound.CartUseCase
	Sessions *Sessions
	Auth     *Authenticator
	Limiter  *Limiter
	Toasts   ToastFeed
	Log      *logrus.Entry
}

type Handlers struct {
	catalog   inbound.CatalogUseCase
	orders    inbound.OrderUseCase
	menu      inbound.MenuUseCase
	carts     inbound.CartUseCase
	sessions  *Sessions
	auth      *Authenticator
	limiter   *Limiter
	adminTmpl *template.Template
	log       *logrus.Entry
}

func NewHandlers(d Deps) *Handlers {
	t := template.Must(web.AdminTemplate(template.FuncMap{"money": formatMoney}))
	log := d.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handlers{
		catalog:   d.Catalog,
		orders:    d.Orders,
		menu:      d.Menu,
		carts:     d.Carts,
		sessions:  d.Sessions,
		auth:      d.Auth,
		limiter:   d.Limiter,
		adminTmpl: t,
		log:       log,
	}
}

func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/admin", h.admin).Methods(http.MethodGet)
	r.HandleFunc("/r/{restaurantID}/t/{tableID}", h.sessions.ScanTable).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/session", h.session).Methods(http.MethodGet)
	api.HandleFunc("/session/logout", h.auth.Logout).Methods(http.MethodPost)
	api.HandleFunc("/session/notices/{notice}/dismiss", h.dismissNotice).Methods(http.MethodPost)

	api.HandleFunc("/cart", h.getCart).Methods(http.MethodGet)
	api.HandleFunc("/cart", h.clearCart).Methods(http.MethodDelete)
	api.HandleFunc("/cart/items", h.addCartItem).Methods(http.MethodPost)
	api.HandleFunc("/cart/items/{itemID}", h.setCartQuantity).Methods(http.MethodPut)
	api.HandleFunc("/cart/items/{itemID}", h.removeCartItem).Methods(http.MethodDelete)
	api.HandleFunc("/cart/submit", h.limiter.Wrap(h.submitCart)).Methods(http.MethodPost)

	api.HandleFunc("/restaurants", h.listRestaurants).Methods(http.MethodGet)
	api.HandleFunc("/restaurants/{rid}/orders/{id}", h.updateOrderStatus).Methods(http.MethodPatch)
	api.HandleFunc("/restaurants/{rid}/order-items/{id}/prepared", h.markItemPrepared).Methods(http.MethodPost)
	api.HandleFunc("/restaurants/{rid}/categories", h.saveCategory).Methods(http.MethodPost)
	api.HandleFunc("/restaurants/{rid}/categories/{id}", h.saveCategory).Methods(http.MethodPut)
	api.HandleFunc("/restaurants/{rid}/categories/{id}", h.deleteCategory).Methods(http.MethodDelete)
	api.HandleFunc("/restaurants/{rid}/menu-items", h.saveMenuItem).Methods(http.MethodPost)
	api.HandleFunc("/restaurants/{rid}/menu-items/{id}", h.saveMenuItem).Methods(http.MethodPut)
	api.HandleFunc("/restaurants/{rid}/menu-items/{id}", h.deleteMenuItem).Methods(http.MethodDelete)
	api.HandleFunc("/restaurants/{rid}/menu-items/{id}/image", h.uploadItemImage).Methods(http.MethodPost)
	api.HandleFunc("/restaurants/{rid}/{kind}", h.listCollection).Methods(http.MethodGet)

	api.HandleFunc("/admin/storage/bootstrap", h.bootstrapStorage).Methods(http.MethodPost)
	api.HandleFunc("/admin/cache/invalidate", h.invalidateCache).Methods(http.MethodPost)
}

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type sessionView struct {
	SessionID string               `json:"session_id"`
	Auth      domain.AuthState     `json:"auth"`
	Table     *domain.TableBinding `json:"table"`
	Dismissed map[string]bool      `json:"dismissed_notices"`
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r.Context())
	view := sessionView{
		SessionID: id,
		Auth:      authState(r.Context()),
		Dismissed: h.sessions.Dismissed(r.Context(), id),
	}
	b, ok, err := h.sessions.Binding(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if ok {
		view.Table = &b
	}
	writeJSON(w, view, http.StatusOK)
}

func (h *Handlers) dismissNotice(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Dismiss(r.Context(), sessionID(r.Context()), mux.Vars(r)["notice"]); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) listRestaurants(w http.ResponseWriter, r *http.Request) {
	h.writeList(w, r, domain.NewQueryKey(domain.KindRestaurants, ""))
}

// listCollection serves one cached collection of a restaurant. ?table= narrows
// orders to a table.
func (h *Handlers) listCollection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, err := domain.ParseKind(vars["kind"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	key := domain.NewQueryKey(kind, vars["rid"])
	if kind == domain.KindOrders {
		key = key.WithScope(r.URL.Query().Get("table"))
	}
	if kind.StaffOnly() && !h.ownTableOrders(r, key) {
		if _, err := requireStaff(r.Context(), key.RestaurantID); err != nil {
			writeError(w, h.log, err)
			return
		}
	}
	h.writeList(w, r, key)
}

// ownTableOrders lets a diner follow the orders of the table they scanned.
func (h *Handlers) ownTableOrders(r *http.Request, key domain.QueryKey) bool {
	if key.Kind != domain.KindOrders || key.Scope == "" {
		return false
	}
	b, ok, err := h.sessions.Binding(r.Context(), sessionID(r.Context()))
	return err == nil && ok && b.RestaurantID == key.RestaurantID && b.TableID == key.Scope
}

func (h *Handlers) writeList(w http.ResponseWriter, r *http.Request, key domain.QueryKey) {
	recs, src, err := h.catalog.Query(r.Context(), key)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if recs == nil {
		recs = []domain.Record{}
	}
	w.Header().Set(DataSourceHeader, string(src))
	writeJSON(w, recs, http.StatusOK)
}

type adminVM struct {
	RestaurantID string
	Page         int
	PageSize     int
	Total        int
	Pages        int
	HasPrev      bool
	HasNext      bool
	PrevPage     int
	NextPage     int
	Orders       []adminOrderRow
	Summary      inbound.OrderSummary
}

type adminOrderRow struct {
	ID         string
	TableID    string
	Customer   string
	CreatedAt  string
	ItemsCount int
	Total      float64
	Status     domain.OrderStatus
}

func (h *Handlers) admin(w http.ResponseWriter, r *http.Request) {
	rid := r.URL.Query().Get("restaurant")
	if rid == "" {
		writeStatus(w, http.StatusBadRequest, "missing restaurant")
		return
	}
	if _, err := requireStaff(r.Context(), rid); err != nil {
		writeError(w, h.log, err)
		return
	}

	page := intQuery(r, "page", 1)
	if page < 1 {
		page = 1
	}
	// Same bounds ListPage applies, so pages and the slice agree.
	size := intQuery(r, "size", 20)
	if size <= 0 || size > 200 {
		size = 20
	}

	orders, total, err := h.orders.ListPage(r.Context(), rid, page, size)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	summary, err := h.orders.Summary(r.Context(), rid)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	pages := (total + size - 1) / size
	if pages < 1 {
		pages = 1
	}
	if page > pages {
		page = pages
	}

	vm := adminVM{
		RestaurantID: rid,
		Page:         page,
		PageSize:     size,
		Total:        total,
		Pages:        pages,
		HasPrev:      page > 1,
		HasNext:      page < pages,
		PrevPage:     page - 1,
		NextPage:     page + 1,
		Summary:      summary,
	}

	for _, o := range orders {
		vm.Orders = append(vm.Orders, adminOrderRow{
			ID:         o.ID,
			TableID:    o.TableID,
			Customer:   o.CustomerName,
			CreatedAt:  o.CreatedAt.Format("2006-01-02 15:04:05"),
			ItemsCount: len(o.Items),
			Total:      o.Total,
			Status:     o.Status,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.adminTmpl.Execute(w, vm); err != nil {
		h.log.WithError(err).Error("[http] admin template")
	}
}
