// Package toast keeps recent notifications per scope so UI streams can
// replay what they have not shown yet.
package toast

import (
	"context"
	"sort"
	"sync"
	"time"

	"menu360/internal/core/domain"
	"menu360/internal/ports/outbound"
)

const (
	DefaultCapacity = 20
	DefaultTTL      = 2 * time.Minute
)

type Hub struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	seq     uint64
	scopes  map[string][]domain.Toast
	waiters map[string]map[chan struct{}]struct{}
}

func NewHub(capacity int, ttl time.Duration) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Hub{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		scopes:   make(map[string][]domain.Toast),
		waiters:  make(map[string]map[chan struct{}]struct{}),
	}
}

// Notify stamps the toast with a hub-wide sequence number and wakes the
// scope's subscribers.
func (h *Hub) Notify(_ context.Context, scope string, t domain.Toast) {
	h.mu.Lock()
	h.seq++
	t.Seq = h.seq
	if t.At.IsZero() {
		t.At = h.now()
	}
	list := append(h.scopes[scope], t)
	if len(list) > h.capacity {
		list = append([]domain.Toast(nil), list[len(list)-h.capacity:]...)
	}
	h.scopes[scope] = list

	for ch := range h.waiters[scope] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	h.mu.Unlock()
}

// Since returns the live toasts of the given scopes with Seq > after, oldest first.
func (h *Hub) Since(after uint64, scopes ...string) []domain.Toast {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-h.ttl)
	var out []domain.Toast
	for _, scope := range scopes {
		for _, t := range h.scopes[scope] {
			if t.Seq > after && t.At.After(cutoff) {
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Last is the newest sequence number handed out so far.
func (h *Hub) Last() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

// Subscribe returns a channel that receives a signal whenever one of the
// scopes gets a toast. cancel must be called to release it.
func (h *Hub) Subscribe(scopes ...string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	for _, s := range scopes {
		if h.waiters[s] == nil {
			h.waiters[s] = make(map[chan struct{}]struct{})
		}
		h.waiters[s][ch] = struct{}{}
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			for _, s := range scopes {
				delete(h.waiters[s], ch)
				if len(h.waiters[s]) == 0 {
					delete(h.waiters, s)
				}
			}
			h.mu.Unlock()
		})
	}
}

// Prune drops expired toasts and empty scopes. It returns the number of
// scopes removed.
func (h *Hub) Prune() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-h.ttl)
	removed := 0
	for scope, list := range h.scopes {
		i := 0
		for i < len(list) && !list[i].At.After(cutoff) {
			i++
		}
		if i == len(list) {
			delete(h.scopes, scope)
			removed++
			continue
		}
		if i > 0 {
			h.scopes[scope] = append([]domain.Toast(nil), list[i:]...)
		}
	}
	return removed
}

var _ outbound.Notifier = (*Hub)(nil)
