package kvstore

import (
	"context"
	"sync"
	"time"

	"menu360/internal/core/domain"
	"menu360/internal/ports/outbound"
)

type memItem struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a process-local KVStore. Last writer wins.
type Memory struct {
	mu    sync.RWMutex
	items map[string]memItem
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]memItem), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()

	if !ok || m.expired(it) {
		return nil, domain.ErrNotFound
	}
	out := make([]byte, len(it.value))
	copy(out, it.value)
	return out, nil
}

// Set stores a copy of value. ttl <= 0 keeps the key until deleted.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	it := memItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = it
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Sweep drops expired keys and returns how many were removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, it := range m.items {
		if m.expired(it) {
			delete(m.items, k)
			n++
		}
	}
	return n
}

func (m *Memory) expired(it memItem) bool {
	return !it.expiresAt.IsZero() && !m.now().Before(it.expiresAt)
}

var _ outbound.KVStore = (*Memory)(nil)
