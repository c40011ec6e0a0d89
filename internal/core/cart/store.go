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

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// OrderPlacer receives submitted carts.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, order domain.Order) (domain.Order, error)
}

// Recorder receives submission outcomes. A nil Recorder is allowed.
type Recorder interface {
	CartSubmission(d time.Duration, success bool)
}

type Options struct {
	// SubmitDelay simulates the checkout round-trip before the order is placed.
	SubmitDelay time.Duration
	// TTL bounds how long an abandoned cart survives in the KV store.
	TTL time.Duration
}

func DefaultOptions() Options {
	return Options{SubmitDelay: 800 * time.Millisecond, TTL: 24 * time.Hour}
}

func storageKey(s domain.CartSession) string { return "cart:" + s.Key() }

// Store is the in-progress selection of one table session. Every mutation is
// persisted before it returns; a failed write rolls the mutation back.
type Store struct {
	session  domain.CartSession
	kv       outbound.KVStore
	notifier outbound.Notifier
	placer   OrderPlacer
	rec      Recorder
	opts     Options
	log      *logrus.Entry

	mu         sync.Mutex
	lines      []domain.CartLine
	submitting bool
	retired    bool
	version    uint64
	touched    time.Time
}

func (s *Store) Session() domain.CartSession { return s.session }

func (s *Store) Add(ctx context.Context, item domain.MenuItem) error {
	return s.AddN(ctx, item, 1)
}

// AddN adds n of item in a single persisted mutation.
func (s *Store) AddN(ctx context.Context, item domain.MenuItem, n int) error {
	if item.ID == "" {
		return domain.NewValidationError("item_id", "is required")
	}
	if n < 1 {
		return domain.NewValidationError("quantity", "must be positive")
	}
	if !item.IsAvailable {
		return domain.NewValidationError("item_id", item.Name+" is not available")
	}

	err := s.mutate(ctx, func(lines []domain.CartLine) []domain.CartLine {
		for i := range lines {
			if lines[i].ItemID == item.ID {
				lines[i].Quantity += n
				return lines
			}
		}
		return append(lines, domain.CartLine{ItemID: item.ID, Name: item.Name, UnitPrice: item.Price, Quantity: n})
	})
	if err != nil {
		return err
	}
	s.notify(ctx, domain.SuccessToast(fmt.Sprintf("Added %s to your order", item.Name)))
	return nil
}

func (s *Store) Remove(ctx context.Context, itemID string) error {
	return s.mutate(ctx, func(lines []domain.CartLine) []domain.CartLine {
		out := lines[:0]
		for _, l := range lines {
			if l.ItemID != itemID {
				out = append(out, l)
			}
		}
		return out
	})
}

// SetQuantity removes the line when n <= 0.
func (s *Store) SetQuantity(ctx context.Context, itemID string, n int) error {
	if n <= 0 {
		return s.Remove(ctx, itemID)
	}
	found := false
	err := s.mutate(ctx, func(lines []domain.CartLine) []domain.CartLine {
		for i := range lines {
			if lines[i].ItemID == itemID {
				lines[i].Quantity = n
				found = true
			}
		}
		return lines
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("cart item %s: %w", itemID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}
	return s.clearLocked(ctx)
}

func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

// Totals is derived on every call.
func (s *Store) Totals() domain.CartTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t domain.CartTotals
	for _, l := range s.lines {
		t.Items += l.Quantity
		t.Price += float64(l.Quantity) * l.UnitPrice
	}
	return t
}

func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Store) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

// Submit waits the configured delay, places the order and clears the cart.
// On failure the cart is left intact and the user is told. Nothing is retried.
// A second Submit while one is in flight fails with ErrSubmitInProgress.
func (s *Store) Submit(ctx context.Context, info domain.CustomerInfo) (domain.Order, error) {
	info = info.Normalize()
	if err := info.Validate(); err != nil {
		return domain.Order{}, err
	}

	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return domain.Order{}, err
	}
	if len(s.lines) == 0 {
		s.mu.Unlock()
		return domain.Order{}, domain.NewValidationError("cart", "is empty")
	}
	s.submitting = true
	s.version++
	order := s.buildOrder(info)
	s.mu.Unlock()

	start := time.Now()
	placed, err := s.place(ctx, order)

	s.mu.Lock()
	s.submitting = false
	s.version++
	if err == nil {
		if cerr := s.clearLocked(ctx); cerr != nil {
			s.log.WithError(cerr).Warn("[cart] clear after submit failed")
		}
	}
	s.mu.Unlock()

	if s.rec != nil {
		s.rec.CartSubmission(time.Since(start), err == nil)
	}
	if err != nil {
		s.log.WithError(err).WithField("session", s.session.Key()).Warn("[cart] submit failed")
		s.notify(ctx, domain.ErrorToast("Could not place your order: "+userMessage(err)))
		return domain.Order{}, err
	}

	s.log.WithFields(logrus.Fields{"order_id": placed.ID, "total": placed.Total}).Info("[cart] order submitted")
	s.notify(ctx, domain.SuccessToast("Order placed! The kitchen has it."))
	return placed, nil
}

func (s *Store) place(ctx context.Context, order domain.Order) (domain.Order, error) {
	if s.opts.SubmitDelay > 0 {
		t := time.NewTimer(s.opts.SubmitDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return domain.Order{}, ctx.Err()
		case <-t.C:
		}
	}
	if s.placer == nil {
		return domain.Order{}, errors.New("no order placer configured")
	}
	return s.placer.PlaceOrder(ctx, order)
}

func (s *Store) buildOrder(info domain.CustomerInfo) domain.Order {
	o := domain.Order{
		ID:            uuid.NewString(),
		RestaurantID:  s.session.RestaurantID,
		TableID:       s.session.TableID,
		CustomerName:  info.Name,
		CustomerPhone: info.Phone,
		Notes:         info.Notes,
		Status:        domain.OrderPending,
	}
	for _, l := range s.lines {
		o.Items = append(o.Items, domain.OrderItem{
			ID:           uuid.NewString(),
			OrderID:      o.ID,
			RestaurantID: o.RestaurantID,
			MenuItemID:   l.ItemID,
			Name:         l.Name,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			Status:       domain.ItemPending,
		})
	}
	o.Total = o.ItemsTotal()
	return o
}

// mutate applies fn to a copy of the lines, persists the result and installs it.
func (s *Store) mutate(ctx context.Context, fn func([]domain.CartLine) []domain.CartLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}

	work := make([]domain.CartLine, len(s.lines))
	copy(work, s.lines)
	next := fn(work)

	if err := s.persistLocked(ctx, next); err != nil {
		return err
	}
	s.lines = next
	s.version++
	s.touched = time.Now()
	return nil
}

func (s *Store) persistLocked(ctx context.Context, lines []domain.CartLine) error {
	if len(lines) == 0 {
		if err := s.kv.Delete(ctx, storageKey(s.session)); err != nil {
			return fmt.Errorf("persist cart: %w", err)
		}
		return nil
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.kv.Set(ctx, storageKey(s.session), b, s.opts.TTL); err != nil {
		return fmt.Errorf("persist cart: %w", err)
	}
	return nil
}

// clearLocked empties the cart even when the persisted copy cannot be deleted,
// so a placed order is never left in the cart.
func (s *Store) clearLocked(ctx context.Context) error {
	s.lines = nil
	s.version++
	s.touched = time.Now()
	if err := s.kv.Delete(ctx, storageKey(s.session)); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

func (s *Store) notify(ctx context.Context, t domain.Toast) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, domain.SessionScope(s.session.SessionID), t)
	}
}

func (s *Store) writableLocked() error {
	switch {
	case s.retired:
		return domain.ErrCartReloaded
	case s.submitting:
		return domain.ErrSubmitInProgress
	}
	return nil
}

// Retired reports whether the registry has let go of this store.
func (s *Store) Retired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retired
}

// retireIfIdle retires the store when it has been idle since before cutoff.
// A store with a submission in flight is never retired.
func (s *Store) retireIfIdle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting || !s.touched.Before(cutoff) {
		return false
	}
	s.retired = true
	return true
}

func userMessage(err error) string {
	switch {
	case domain.IsValidation(err):
		return err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "the request was interrupted"
	case errors.Is(err, domain.ErrForbidden):
		return "this table is not accepting orders"
	case errors.Is(err, domain.ErrUnavailable):
		return "the restaurant is unreachable, please try again"
	}
	return "something went wrong, please try again"
}

var _ inbound.Cart = (*Store)(nil)
