package kafkain

import (
	"context"
	"errors"
	"time"

	"menu360/internal/core/domain"
	"menu360/internal/ports/inbound"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds row-change messages from a CDC topic into a ChangeSink.
type Consumer struct {
	reader     messageReader
	sink       inbound.ChangeSink
	log        *logrus.Entry
	retryDelay time.Duration
}

type ConsumerConfig struct {
	Brokers  []string
	Topics   []string
	GroupID  string
	MinBytes int
	MaxBytes int
}

func NewConsumer(cfg ConsumerConfig, sink inbound.ChangeSink, log *logrus.Entry) *Consumer {
	rc := kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	}
	if len(cfg.Topics) == 1 {
		rc.Topic = cfg.Topics[0]
	} else {
		rc.GroupTopics = cfg.Topics
	}
	return newConsumer(kafka.NewReader(rc), sink, log)
}

func newConsumer(r messageReader, sink inbound.ChangeSink, log *logrus.Entry) *Consumer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Consumer{reader: r, sink: sink, log: log, retryDelay: time.Second}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			c.log.WithError(err).Warn("[kafka] fetch error")
			c.sleep(ctx, c.retryDelay/2)
			continue
		}

		fields := logrus.Fields{"topic": msg.Topic, "partition": msg.Partition, "offset": msg.Offset}

		ev, derr := DecodeChange(msg.Value)
		if errors.Is(derr, ErrTombstone) {
			c.commit(ctx, msg)
			continue
		}
		if derr != nil {
			c.log.WithError(derr).WithFields(fields).Warn("[kafka] bad message (skip+commit)")
			c.commit(ctx, msg) // poison pill
			continue
		}

		if err := c.sink.Handle(ctx, ev); err != nil {
			if domain.IsValidation(err) {
				c.log.WithError(err).WithFields(fields).Warn("[kafka] malformed change (skip+commit)")
				c.commit(ctx, msg)
				continue
			}
			// no commit: the message is redelivered after a rebalance or restart
			c.log.WithError(err).WithFields(fields).Error("[kafka] apply failed (no commit)")
			c.sleep(ctx, c.retryDelay)
			continue
		}

		c.commit(ctx, msg)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		c.log.WithError(err).WithField("offset", msg.Offset).Warn("[kafka] commit error")
	}
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
