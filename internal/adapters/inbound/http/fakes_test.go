package httpin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"menu360/internal/adapters/outbound/kvstore"
	"menu360/internal/adapters/outbound/toast"
	"menu360/internal/app/logging"
	"menu360/internal/core/cart"
	"menu360/internal/core/domain"
	"menu360/internal/ports/inbound"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

type fakeCatalog struct {
	mu          sync.Mutex
	lists       map[domain.QueryKey][]domain.Record
	source      domain.DataSource
	err         error
	invalidated []domain.QueryKey
	cleared     int
}

func (f *fakeCatalog) Query(_ context.Context, key domain.QueryKey) ([]domain.Record, domain.DataSource, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	src := f.source
	if src == "" {
		src = domain.SourceLive
	}
	return f.lists[key], src, nil
}

func (f *fakeCatalog) WarmCache(context.Context, []string) (int, error) { return 0, nil }
func (f *fakeCatalog) Refresh(context.Context) (int, error)            { return 0, nil }

func (f *fakeCatalog) Invalidate(_ context.Context, key domain.QueryKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, key)
}

func (f *fakeCatalog) InvalidateAll(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
}

func (f *fakeCatalog) FindMenuItem(_ context.Context, restaurantID, itemID string) (domain.MenuItem, error) {
	for _, rec := range f.lists[domain.NewQueryKey(domain.KindMenuItems, restaurantID)] {
		if m := rec.(domain.MenuItem); m.ID == itemID {
			return m, nil
		}
	}
	return domain.MenuItem{}, domain.ErrNotFound
}

func (f *fakeCatalog) Version(context.Context, domain.QueryKey) uint64 { return 0 }

type fakeOrders struct {
	mu        sync.Mutex
	placed    []domain.Order
	orders    []domain.Order
	updateErr error
	updated   []string
	sizes     []int
}

func (f *fakeOrders) PlaceOrder(_ context.Context, o domain.Order) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, o)
	return o, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, rid, id string, status domain.OrderStatus) (domain.Order, error) {
	if f.updateErr != nil {
		return domain.Order{}, f.updateErr
	}
	f.updated = append(f.updated, rid+"/"+id+"="+string(status))
	return domain.Order{ID: id, RestaurantID: rid, Status: status}, nil
}

func (f *fakeOrders) MarkItemPrepared(_ context.Context, rid, id string) (domain.OrderItem, error) {
	return domain.OrderItem{ID: id, RestaurantID: rid, Status: domain.ItemPrepared}, nil
}

func (f *fakeOrders) ListPage(_ context.Context, rid string, page, size int) ([]domain.Order, int, error) {
	f.sizes = append(f.sizes, size)
	return f.orders, len(f.orders), nil
}

func (f *fakeOrders) Summary(context.Context, string) (inbound.OrderSummary, error) {
	s := inbound.OrderSummary{ByStatus: map[domain.OrderStatus]int{}}
	for _, o := range f.orders {
		s.Total++
		s.ByStatus[o.Status]++
		s.Revenue += o.Total
	}
	return s, nil
}

type fakeMenu struct {
	saved     []domain.MenuItem
	uploads   []string
	bootstrap int
}

func (f *fakeMenu) SaveCategory(_ context.Context, c domain.Category) (domain.Category, error) {
	if err := c.Validate(); err != nil {
		return domain.Category{}, err
	}
	if c.ID == "" {
		c.ID = "new-cat"
	}
	return c, nil
}

func (f *fakeMenu) DeleteCategory(context.Context, string, string) error { return nil }

func (f *fakeMenu) SaveMenuItem(_ context.Context, m domain.MenuItem) (domain.MenuItem, error) {
	f.saved = append(f.saved, m)
	return m, nil
}

func (f *fakeMenu) DeleteMenuItem(_ context.Context, _, id string) error {
	if id == "missing" {
		return domain.ErrNotFound
	}
	return nil
}

func (f *fakeMenu) UploadItemImage(_ context.Context, rid, id, filename, contentType string, data []byte) (domain.MenuItem, error) {
	f.uploads = append(f.uploads, filename+"|"+contentType+"|"+string(data))
	return domain.MenuItem{ID: id, RestaurantID: rid, ImageURL: "https://cdn/" + filename}, nil
}

func (f *fakeMenu) BootstrapStorage(context.Context) error {
	f.bootstrap++
	return nil
}

type testEnv struct {
	handler http.Handler
	kv      *kvstore.Memory
	hub     *toast.Hub
	carts   *cart.Registry
	catalog *fakeCatalog
	orders  *fakeOrders
	menu    *fakeMenu
	limiter *Limiter
	cookies []*http.Cookie
}

func dosa() domain.MenuItem {
	return domain.MenuItem{ID: "m1", RestaurantID: "r1", Name: "Masala Dosa", Price: 120, IsAvailable: true}
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logging.Component(logging.Discard(), "http")
	kv := kvstore.NewMemory()
	hub := toast.NewHub(0, 0)
	catalog := &fakeCatalog{lists: map[domain.QueryKey][]domain.Record{
		domain.NewQueryKey(domain.KindMenuItems, "r1"): {dosa()},
	}}
	orders := &fakeOrders{}
	menu := &fakeMenu{}
	registry := cart.NewRegistry(kv, hub, orders, nil, cart.Options{TTL: time.Hour}, log)
	limiter := NewLimiter(time.Minute, 1)

	d := Deps{
		Catalog:  catalog,
		Orders:   orders,
		Menu:     menu,
		Carts:    registry,
		Sessions: NewSessions(kv, false),
		Auth:     NewAuthenticator(testSecret, kv, log),
		Limiter:  limiter,
		Toasts:   hub,
		Log:      log,
	}
	return &testEnv{
		handler: NewRouter(NewHandlers(d), NewUI(d)),
		kv:      kv,
		hub:     hub,
		carts:   registry,
		catalog: catalog,
		orders:  orders,
		menu:    menu,
		limiter: limiter,
	}
}

// do sends a request carrying the session cookie from earlier responses.
func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	for _, c := range e.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			e.cookies = []*http.Cookie{c}
		}
	}
	return rec
}

func staffToken(t *testing.T, role string, restaurants ...string) string {
	t.Helper()
	ids := make([]any, len(restaurants))
	for i, r := range restaurants {
		ids[i] = r
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":          "user-" + role + "-" + strings.Join(restaurants, "-"),
		"email":        role + "@menu360.test",
		"role":         "authenticated",
		"exp":          time.Now().Add(time.Hour).Unix(),
		"app_metadata": map[string]any{"role": role, "restaurant_ids": ids},
	})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + s
}
