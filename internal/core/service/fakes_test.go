package service

import (
	"context"
	"fmt"
	"sync"

	"menu360/internal/core/domain"
)

type fakeRepo struct {
	mu         sync.Mutex
	lists      map[domain.QueryKey][]domain.Record
	orders     map[string]domain.Order
	categories map[string]domain.Category
	items      map[string]domain.MenuItem
	listErr    error
	listCalls  int
	createErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		lists:      map[domain.QueryKey][]domain.Record{},
		orders:     map[string]domain.Order{},
		categories: map[string]domain.Category{},
		items:      map[string]domain.MenuItem{},
	}
}

func (r *fakeRepo) List(_ context.Context, key domain.QueryKey) ([]domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.lists[key], nil
}

func (r *fakeRepo) GetOrder(_ context.Context, _ string, id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (r *fakeRepo) CreateOrder(_ context.Context, o domain.Order) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return domain.Order{}, r.createErr
	}
	r.orders[o.ID] = o
	return o, nil
}

func (r *fakeRepo) UpdateOrderStatus(_ context.Context, _ string, id string, st domain.OrderStatus) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	o.Status = st
	r.orders[id] = o
	return o, nil
}

func (r *fakeRepo) UpdateOrderItemStatus(_ context.Context, _ string, id string, st domain.ItemStatus) (domain.OrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for oid, o := range r.orders {
		for i, it := range o.Items {
			if it.ID == id {
				items := append([]domain.OrderItem(nil), o.Items...)
				items[i].Status = st
				o.Items = items
				r.orders[oid] = o
				return items[i], nil
			}
		}
	}
	return domain.OrderItem{}, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
}

func (r *fakeRepo) SaveCategory(_ context.Context, c domain.Category) (domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories[c.ID] = c
	return c, nil
}

func (r *fakeRepo) DeleteCategory(_ context.Context, _ string, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.categories, id)
	return nil
}

func (r *fakeRepo) SaveMenuItem(_ context.Context, m domain.MenuItem) (domain.MenuItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[m.ID] = m
	return m, nil
}

func (r *fakeRepo) DeleteMenuItem(_ context.Context, _ string, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

type fakeMedia struct {
	objects map[string][]byte
	deleted []string
	bucket  bool
}

func newFakeMedia() *fakeMedia { return &fakeMedia{objects: map[string][]byte{}} }

func (m *fakeMedia) EnsureBucket(context.Context) error { m.bucket = true; return nil }

func (m *fakeMedia) Upload(_ context.Context, p, _ string, data []byte) error {
	m.objects[p] = data
	return nil
}

func (m *fakeMedia) PublicURL(p string) string { return "https://cdn.test/menu-images/" + p }

func (m *fakeMedia) Delete(_ context.Context, p string) error {
	m.deleted = append(m.deleted, p)
	delete(m.objects, p)
	return nil
}

type fakePublisher struct {
	published []domain.Order
	err       error
}

func (p *fakePublisher) PublishOrderPlaced(_ context.Context, o domain.Order) error {
	p.published = append(p.published, o)
	return p.err
}

type sent struct {
	scope string
	toast domain.Toast
}

type fakeNotifier struct{ sent []sent }

func (n *fakeNotifier) Notify(_ context.Context, scope string, t domain.Toast) {
	n.sent = append(n.sent, sent{scope, t})
}

type fallbackCounter struct{ reasons []string }

func (f *fallbackCounter) FixtureFallback(kind, reason string) {
	f.reasons = append(f.reasons, kind+":"+reason)
}
