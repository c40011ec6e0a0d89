package kafkain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"menu360/internal/app/logging"
	"menu360/internal/core/domain"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeChange(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		op      domain.ChangeOp
		table   domain.Kind
		hasNew  bool
		hasOld  bool
		invalid bool
	}{
		{
			name:  "debezium with schema wrapper",
			in:    `{"schema":{},"payload":{"op":"c","source":{"table":"orders"},"after":{"id":"o1"},"ts_ms":1709294400000}}`,
			op:    domain.OpInsert, table: domain.KindOrders, hasNew: true,
		},
		{
			name:  "debezium snapshot read",
			in:    `{"op":"r","source":{"table":"menu_items"},"after":{"id":"m1"}}`,
			op:    domain.OpInsert, table: domain.KindMenuItems, hasNew: true,
		},
		{
			name:  "debezium delete",
			in:    `{"op":"d","source":{"table":"menu_categories"},"before":{"id":"c1"},"after":null}`,
			op:    domain.OpDelete, table: domain.KindCategories, hasOld: true,
		},
		{
			name:  "webhook update",
			in:    `{"type":"UPDATE","table":"orders","record":{"id":"o1"},"old_record":{"id":"o1"}}`,
			op:    domain.OpUpdate, table: domain.KindOrders, hasNew: true, hasOld: true,
		},
		{name: "unknown debezium op", in: `{"op":"t","source":{"table":"orders"}}`, invalid: true},
		{name: "missing table", in: `{"op":"c","after":{"id":"o1"}}`, invalid: true},
		{name: "unknown webhook type", in: `{"type":"TRUNCATE","table":"orders"}`, invalid: true},
		{name: "garbage", in: `{not json`, invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeChange([]byte(tt.in))
			if tt.invalid {
				assert.True(t, domain.IsValidation(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.op, ev.Op)
			assert.Equal(t, tt.table, ev.Table)
			assert.Equal(t, tt.hasNew, ev.New != nil)
			assert.Equal(t, tt.hasOld, ev.Old != nil)
		})
	}

	ev, err := DecodeChange([]byte(`{"op":"u","source":{"table":"orders"},"after":{"id":"o1"},"ts_ms":1709294400000}`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), ev.CommitTime)

	_, err = DecodeChange(nil)
	assert.ErrorIs(t, err, ErrTombstone)
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeSink struct {
	mu   sync.Mutex
	seen []string
	errs map[string]error
}

func (s *fakeSink) Handle(_ context.Context, ev domain.ChangeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := string(ev.New)
	s.seen = append(s.seen, id)
	return s.errs[id]
}

func msg(offset int64, value string) kafka.Message {
	return kafka.Message{Topic: "cdc", Offset: offset, Value: []byte(value)}
}

func row(id string) string {
	return fmt.Sprintf(`{"type":"INSERT","table":"orders","record":%s}`, id)
}

func TestConsumerCommitPolicy(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		msg(1, row(`{"id":"ok"}`)),
		msg(2, `{broken`),
		msg(3, row(`{"id":"malformed"}`)),
		msg(4, row(`{"id":"down"}`)),
		msg(5, ""),
		msg(6, row(`{"id":"ok2"}`)),
	}}
	sink := &fakeSink{errs: map[string]error{
		`{"id":"malformed"}`: fmt.Errorf("decode: %w", domain.NewValidationError("id", "row has no id")),
		`{"id":"down"}`:      errors.New("cache unavailable"),
	}}
	c := newConsumer(reader, sink, logging.Component(logging.Discard(), "kafka"))
	c.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { c.Run(ctx); close(done) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 5 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []int64{1, 2, 3, 5, 6}, reader.commits())
	assert.Len(t, sink.seen, 4)
}
