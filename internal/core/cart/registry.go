package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"menu360/internal/core/domain"
	"menu360/internal/ports/inbound"
	"menu360/internal/ports/outbound"

	"github.com/sirupsen/logrus"
)

// Registry hands out one Store per session, restoring persisted carts on
// first access.
type Registry struct {
	kv       outbound.KVStore
	notifier outbound.Notifier
	placer   OrderPlacer
	rec      Recorder
	opts     Options
	log      *logrus.Entry

	mu     sync.Mutex
	stores map[string]*Store
}

func NewRegistry(kv outbound.KVStore, notifier outbound.Notifier, placer OrderPlacer, rec Recorder, opts Options, log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		kv:       kv,
		notifier: notifier,
		placer:   placer,
		rec:      rec,
		opts:     opts,
		log:      log,
		stores:   make(map[string]*Store),
	}
}

func (r *Registry) Cart(ctx context.Context, session domain.CartSession) (inbound.Cart, error) {
	return r.Store(ctx, session)
}

func (r *Registry) Store(ctx context.Context, session domain.CartSession) (*Store, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.stores[session.Key()]; ok {
		return s, nil
	}

	lines, err := r.restore(ctx, session)
	if err != nil {
		return nil, err
	}
	s := &Store{
		session:  session,
		kv:       r.kv,
		notifier: r.notifier,
		placer:   r.placer,
		rec:      r.rec,
		opts:     r.opts,
		log:      r.log,
		lines:    lines,
		touched:  time.Now(),
	}
	r.stores[session.Key()] = s
	return s, nil
}

func (r *Registry) restore(ctx context.Context, session domain.CartSession) ([]domain.CartLine, error) {
	b, err := r.kv.Get(ctx, storageKey(session))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	var lines []domain.CartLine
	if err := json.Unmarshal(b, &lines); err != nil {
		r.log.WithError(err).WithField("session", session.Key()).Warn("[cart] discarding unreadable cart")
		return nil, nil
	}
	return normalize(lines), nil
}

// normalize enforces one line per item with quantity >= 1 on restored data.
func normalize(lines []domain.CartLine) []domain.CartLine {
	idx := make(map[string]int, len(lines))
	var out []domain.CartLine
	for _, l := range lines {
		if l.ItemID == "" || l.Quantity < 1 {
			continue
		}
		if i, ok := idx[l.ItemID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.ItemID] = len(out)
		out = append(out, l)
	}
	return out
}

// Evict drops in-memory stores idle for longer than maxIdle. Persisted carts
// stay in the KV store and are restored on the next access. Evicted stores are
// retired, so a caller still holding one cannot overwrite the restored copy.
func (r *Registry) Evict(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, s := range r.stores {
		if s.retireIfIdle(cutoff) {
			delete(r.stores, k)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

var _ inbound.CartUseCase = (*Registry)(nil)
