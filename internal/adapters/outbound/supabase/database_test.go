package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"menu360/internal/app/logging"
	"menu360/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  string
	body   string
	header http.Header
}

type fakeAPI struct {
	mu    sync.Mutex
	calls []recorded
	reply func(r *http.Request) (int, string)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, recorded{r.Method, r.URL.Path, r.URL.RawQuery, string(b), r.Header.Clone()})
	f.mu.Unlock()
	r.Body = io.NopCloser(bytes.NewReader(b))
	status, body := f.reply(r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func newTestClient(t *testing.T, reply func(r *http.Request) (int, string)) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{reply: reply}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	c, err := New(Config{URL: srv.URL + "/", APIKey: "service-key"})
	require.NoError(t, err)
	return c, api
}

func TestNewRequiresURLAndKey(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.Error(t, err)
	_, err = New(Config{URL: "https://x.supabase.co"})
	assert.Error(t, err)
}

func TestStatusErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{404, `{}`, domain.ErrNotFound},
		{406, `{"code":"PGRST116","message":"no rows"}`, domain.ErrNotFound},
		{401, `{"message":"JWT expired"}`, domain.ErrForbidden},
		{403, `{"code":"42501","message":"permission denied"}`, domain.ErrForbidden},
		{409, `{"code":"23505","message":"duplicate key"}`, domain.ErrConflict},
		{503, ``, domain.ErrUnavailable},
		{429, `{"error":"slow down"}`, domain.ErrUnavailable},
	}
	for _, tt := range tests {
		err := statusError(tt.status, []byte(tt.body))
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
	}

	err := statusError(400, []byte(`{"code":"23503","message":"violates foreign key"}`))
	assert.True(t, domain.IsValidation(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "23503", apiErr.Code)
}

func TestListSendsTenantFiltersAndDecodes(t *testing.T) {
	c, api := newTestClient(t, func(*http.Request) (int, string) {
		return 200, `[{"id":"o1","restaurant_id":"r1","table_id":"t1","status":"pending","total":"500.00",
			"items":[{"id":"i1","order_id":"o1","quantity":"2","unit_price":"250","name":"Dosa"}]}]`
	})
	repo := NewRepository(c, logging.Component(logging.Discard(), "supabase"))

	recs, err := repo.List(context.Background(), domain.NewQueryKey(domain.KindOrders, "r1").WithScope("t1"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	o := recs[0].(domain.Order)
	assert.InDelta(t, 500, o.Total, 1e-9)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Quantity)

	call := api.calls[0]
	assert.Equal(t, "/rest/v1/orders", call.path)
	assert.Contains(t, call.query, "restaurant_id=eq.r1")
	assert.Contains(t, call.query, "table_id=eq.t1")
	assert.Equal(t, "service-key", call.header.Get("apikey"))
	assert.Equal(t, "Bearer service-key", call.header.Get("Authorization"))
}

func TestListRequiresTenant(t *testing.T) {
	_, err := listParams(domain.NewQueryKey(domain.KindMenuItems, ""))
	assert.True(t, domain.IsValidation(err))

	q, err := listParams(domain.NewQueryKey(domain.KindRestaurants, ""))
	require.NoError(t, err)
	assert.Empty(t, q.Get("id"))
}

func TestCreateOrderRemovesOrderWhenItemsFail(t *testing.T) {
	c, api := newTestClient(t, func(r *http.Request) (int, string) {
		switch {
		case r.Method == "POST" && r.URL.Path == "/rest/v1/orders":
			return 201, ``
		case r.Method == "POST" && r.URL.Path == "/rest/v1/order_items":
			return 400, `{"code":"23503","message":"menu item missing"}`
		case r.Method == "DELETE":
			return 200, `[{"id":"o1"}]`
		}
		return 500, `{}`
	})
	repo := NewRepository(c, logging.Component(logging.Discard(), "supabase"))

	_, err := repo.CreateOrder(context.Background(), domain.Order{
		ID: "o1", RestaurantID: "r1", TableID: "t1",
		Items: []domain.OrderItem{{ID: "i1", MenuItemID: "m1", Quantity: 1}},
	})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	require.Len(t, api.calls, 3)
	assert.Equal(t, "DELETE", api.calls[2].method)
	assert.Contains(t, api.calls[2].query, "id=eq.o1")

	var row map[string]any
	require.NoError(t, json.Unmarshal([]byte(api.calls[0].body), &row))
	assert.NotContains(t, row, "items")
	var items []map[string]any
	require.NoError(t, json.Unmarshal([]byte(api.calls[1].body), &items))
	assert.Equal(t, "o1", items[0]["order_id"])
	assert.Equal(t, "pending", items[0]["status"])
}

func TestUpdateOrderStatusNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(*http.Request) (int, string) { return 200, `[]` })
	repo := NewRepository(c, nil)

	_, err := repo.UpdateOrderStatus(context.Background(), "r1", "o1", domain.OrderReady)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = repo.DeleteMenuItem(context.Background(), "r1", "m1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSaveMenuItemUpserts(t *testing.T) {
	c, api := newTestClient(t, func(r *http.Request) (int, string) {
		b, _ := io.ReadAll(r.Body)
		return 201, "[" + string(b) + "]"
	})
	repo := NewRepository(c, nil)

	m, err := repo.SaveMenuItem(context.Background(), domain.MenuItem{ID: "m1", RestaurantID: "r1", Name: "Idli", Price: 60})
	require.NoError(t, err)
	assert.Equal(t, "Idli", m.Name)
	assert.NotNil(t, m.Tags)

	call := api.calls[0]
	assert.Contains(t, call.query, "on_conflict=id")
	assert.Contains(t, call.header.Get("Prefer"), "resolution=merge-duplicates")
	assert.NotContains(t, call.body, "0001-01-01")
}
