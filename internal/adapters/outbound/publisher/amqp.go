// Package publisher fans order events and staff notifications out to
// external systems.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"menu360/internal/core/domain"
	"menu360/internal/ports/outbound"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange   = "menu360.orders"
	EventOrderPlaced  = "order.placed"
	defaultAckTimeout = 5 * time.Second
)

// OrderPlacedEvent is the message body published for every new order.
type OrderPlacedEvent struct {
	Event      string       `json:"event"`
	OccurredAt time.Time    `json:"occurred_at"`
	Order      domain.Order `json:"order"`
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes with publisher confirms; each publish waits for the
// broker's ack.
type AMQP struct {
	conn     *amqp.Connection
	ch       channel
	acks     <-chan amqp.Confirmation
	exchange string
	timeout  time.Duration
	now      func() time.Time

	mu sync.Mutex
}

func DialAMQP(url, exchange string) (*AMQP, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	p := newAMQP(ch, acks, exchange)
	p.conn = conn
	return p, nil
}

func newAMQP(ch channel, acks <-chan amqp.Confirmation, exchange string) *AMQP {
	return &AMQP{ch: ch, acks: acks, exchange: exchange, timeout: defaultAckTimeout, now: time.Now}
}

// PublishOrderPlaced routes on order.placed.<restaurant id>.
func (p *AMQP) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	body, err := json.Marshal(OrderPlacedEvent{Event: EventOrderPlaced, OccurredAt: p.now().UTC(), Order: order})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.exchange, EventOrderPlaced+"."+order.RestaurantID, false, false, amqp.Publishing{
		DeliveryMode:  amqp.Persistent,
		ContentType:   "application/json",
		MessageId:     order.ID,
		CorrelationId: order.ID,
		Timestamp:     p.now().UTC(),
		Headers:       amqp.Table{"x-source": "menu360"},
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", order.ID, errors.Join(domain.ErrUnavailable, err))
	}

	select {
	case conf, ok := <-p.acks:
		if !ok {
			return fmt.Errorf("publish %s: %w", order.ID, errors.Join(domain.ErrUnavailable, amqp.ErrClosed))
		}
		if !conf.Ack {
			return fmt.Errorf("publish %s: broker nack: %w", order.ID, domain.ErrUnavailable)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish %s: waiting for ack: %w", order.ID, ctx.Err())
	}
}

func (p *AMQP) Close() error {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

var _ outbound.OrderEventPublisher = (*AMQP)(nil)
