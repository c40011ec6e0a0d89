package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"menu360/internal/core/domain"
	"menu360/internal/ports/inbound"
	"menu360/internal/ports/outbound"

	"github.com/sirupsen/logrus"
)

// WatchedTables is the fixed set of tables mirrored into the query cache.
var WatchedTables = []domain.Kind{
	domain.KindCategories,
	domain.KindMenuItems,
	domain.KindOrders,
	domain.KindOrderItems,
	domain.KindInvoices,
}

// Recorder receives bridge counters. A nil Recorder is allowed.
type Recorder interface {
	RealtimeEvent(table, op, result string)
	SubscriptionState(table, state string)
}

type Bridge struct {
	cache    outbound.QueryCache
	feed     outbound.ChangeFeed
	notifier outbound.Notifier
	rec      Recorder
	log      *logrus.Entry

	watched map[domain.Kind]bool
}

func NewBridge(cache outbound.QueryCache, feed outbound.ChangeFeed, notifier outbound.Notifier, rec Recorder, log *logrus.Entry) *Bridge {
	watched := make(map[domain.Kind]bool, len(WatchedTables))
	for _, k := range WatchedTables {
		watched[k] = true
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Bridge{
		cache:    cache,
		feed:     feed,
		notifier: notifier,
		rec:      rec,
		log:      log,
		watched:  watched,
	}
}

// Handle applies one change notification to the cache. Malformed events are
// reported as validation errors.
func (b *Bridge) Handle(ctx context.Context, ev domain.ChangeEvent) error {
	if !b.watched[ev.Table] {
		b.record(string(ev.Table), string(ev.Op), "ignored")
		return nil
	}

	ch, err := Decode(ev)
	if err != nil {
		b.record(string(ev.Table), string(ev.Op), "malformed")
		return fmt.Errorf("decode %s %s: %w", ev.Table, ev.Op, err)
	}

	var prev, parent domain.Record
	b.cache.Apply(ctx, func(s domain.Snapshot) domain.Snapshot {
		prev, _ = lookup(s, ch.Kind, ch.ID)
		if ch.OrderID != "" {
			parent, _ = lookup(s, domain.KindOrders, ch.OrderID)
		}
		return Reduce(s, ch)
	})
	b.record(string(ev.Table), string(ev.Op), "applied")

	b.log.WithFields(logrus.Fields{"table": ch.Kind, "op": ch.Op, "id": ch.ID}).Debug("[realtime] change applied")
	b.toast(ctx, ch, prev, parent)
	return nil
}

func (b *Bridge) toast(ctx context.Context, ch Change, prev, parent domain.Record) {
	if b.notifier == nil {
		return
	}

	switch rec := ch.Record.(type) {
	case domain.Order:
		switch {
		case ch.Op == domain.OpInsert:
			b.notifier.Notify(ctx, domain.StaffScope(rec.RestaurantID),
				domain.InfoToast(fmt.Sprintf("New order from table %s", rec.TableID)))
		case ch.Op == domain.OpUpdate && rec.Status == domain.OrderCompleted:
			if old, ok := prev.(domain.Order); ok && old.Status == domain.OrderCompleted {
				return
			}
			t := domain.SuccessToast(fmt.Sprintf("Order %s completed", shortID(rec.ID)))
			b.notifier.Notify(ctx, domain.StaffScope(rec.RestaurantID), t)
			b.notifier.Notify(ctx, domain.TableScope(rec.RestaurantID, rec.TableID), t)
		}
	case domain.OrderItem:
		if ch.Op != domain.OpUpdate || rec.Status != domain.ItemPrepared {
			return
		}
		if old, ok := prev.(domain.OrderItem); ok && old.Status == domain.ItemPrepared {
			return
		}
		t := domain.SuccessToast(fmt.Sprintf("%s is ready", itemName(rec)))
		if o, ok := parent.(domain.Order); ok {
			b.notifier.Notify(ctx, domain.TableScope(o.RestaurantID, o.TableID), t)
			return
		}
		b.notifier.Notify(ctx, domain.StaffScope(rec.RestaurantID), t)
	}
}

// Watch opens one subscription per watched table. An empty restaurantID watches
// every tenant. The caller must Close the returned Watch.
func (b *Bridge) Watch(ctx context.Context, restaurantID string) (*Watch, error) {
	if b.feed == nil {
		return nil, errors.New("realtime: no change feed configured")
	}

	w := &Watch{bridge: b, restaurantID: restaurantID}
	for _, table := range WatchedTables {
		spec := domain.SubscriptionSpec{Table: table, Event: domain.OpAll}
		if restaurantID != "" {
			spec.Filter = "restaurant_id=eq." + restaurantID
		}

		sub := &subscription{table: table, bridge: b}
		w.subs = append(w.subs, sub)
		sub.transition(domain.StateSubscribing, nil)

		handle, err := b.feed.Subscribe(ctx, spec, b.onChange, sub.transition)
		if err != nil {
			sub.transition(domain.StateError, err)
			_ = w.Close(ctx)
			return nil, fmt.Errorf("subscribe %s: %w", table, err)
		}
		sub.setHandle(handle)
	}

	b.log.WithField("restaurant_id", restaurantID).Infof("[realtime] watching %d tables", len(w.subs))
	return w, nil
}

func (b *Bridge) onChange(ctx context.Context, ev domain.ChangeEvent) {
	if err := b.Handle(ctx, ev); err != nil {
		b.log.WithError(err).Warn("[realtime] change dropped")
	}
}

func (b *Bridge) record(table, op, result string) {
	if b.rec != nil {
		b.rec.RealtimeEvent(table, op, result)
	}
}

// Watch owns the subscriptions opened by one Bridge.Watch call.
type Watch struct {
	bridge       *Bridge
	restaurantID string

	mu     sync.Mutex
	subs   []*subscription
	closed bool
}

// Close deregisters every channel the watch opened. It is safe to call twice.
func (w *Watch) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	subs := w.subs
	w.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if err := s.unsubscribe(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe %s: %w", s.table, err))
		}
	}
	return errors.Join(errs...)
}

func (w *Watch) States() map[domain.Kind]domain.SubscriptionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[domain.Kind]domain.SubscriptionState, len(w.subs))
	for _, s := range w.subs {
		out[s.table] = s.State()
	}
	return out
}

type subscription struct {
	table  domain.Kind
	bridge *Bridge

	mu     sync.Mutex
	state  domain.SubscriptionState
	handle outbound.Subscription
}

func (s *subscription) State() domain.SubscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *subscription) setHandle(h outbound.Subscription) {
	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()
}

// transition is also the provider status callback. Out-of-order callbacks,
// such as an ack after teardown, are dropped. Errors are not retried.
func (s *subscription) transition(next domain.SubscriptionState, err error) {
	s.mu.Lock()
	cur := s.state
	if !cur.CanTransition(next) {
		s.mu.Unlock()
		s.bridge.log.WithFields(logrus.Fields{"table": s.table, "from": cur, "to": next}).
			Debug("[realtime] ignored subscription transition")
		return
	}
	s.state = next
	s.mu.Unlock()

	if s.bridge.rec != nil {
		s.bridge.rec.SubscriptionState(string(s.table), next.String())
	}
	entry := s.bridge.log.WithFields(logrus.Fields{"table": s.table, "state": next})
	if next == domain.StateError {
		entry.WithError(err).Error("[realtime] subscription failed")
		return
	}
	entry.Debug("[realtime] subscription state")
}

func (s *subscription) unsubscribe(ctx context.Context) error {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()

	var err error
	if h != nil {
		err = h.Unsubscribe(ctx)
	}
	s.transition(domain.StateUnsubscribed, nil)
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return "#" + id[:8]
	}
	return "#" + id
}

func itemName(it domain.OrderItem) string {
	if it.Name != "" {
		return it.Name
	}
	return "Your item"
}

var _ inbound.ChangeSink = (*Bridge)(nil)
