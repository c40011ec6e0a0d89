package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"menu360/internal/core/domain"
	"menu360/internal/ports/outbound"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	DefaultHeartbeat = 30 * time.Second
	writeTimeout     = 10 * time.Second
)

var errFeedClosed = errors.New("realtime connection closed")

// Realtime is a ChangeFeed over the Supabase realtime websocket. All
// subscriptions share one connection; it is dialled on the first Subscribe
// and closed when the last subscription leaves.
type Realtime struct {
	url       string
	dialer    *websocket.Dialer
	heartbeat time.Duration
	log       *logrus.Entry

	mu       sync.Mutex
	conn     *websocket.Conn
	done     chan struct{}
	channels map[string]*channel
	ref      uint64
	seq      uint64

	writeMu sync.Mutex
}

type RealtimeOptions struct {
	Heartbeat time.Duration
	Dialer    *websocket.Dialer
}

// NewRealtime derives the websocket endpoint from the project URL.
func NewRealtime(projectURL, apiKey string, opts RealtimeOptions, log *logrus.Entry) (*Realtime, error) {
	u, err := url.Parse(strings.TrimSuffix(projectURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("realtime: parse URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("realtime: unsupported scheme %q", u.Scheme)
	}
	u.Path += "/realtime/v1/websocket"
	u.RawQuery = url.Values{"apikey": {apiKey}, "vsn": {"1.0.0"}}.Encode()

	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Realtime{
		url:       u.String(),
		dialer:    opts.Dialer,
		heartbeat: opts.Heartbeat,
		log:       log,
		channels:  make(map[string]*channel),
	}, nil
}

type channel struct {
	feed     *Realtime
	topic    string
	joinRef  string
	onChange outbound.ChangeHandler
	onStatus outbound.StatusHandler

	leaveOnce sync.Once
}

// Subscribe sends phx_join and returns; the join reply arrives through
// onStatus as StateSubscribed or StateError.
func (r *Realtime) Subscribe(ctx context.Context, spec domain.SubscriptionSpec, onChange outbound.ChangeHandler, onStatus outbound.StatusHandler) (outbound.Subscription, error) {
	conn, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.seq++
	r.ref++
	ch := &channel{
		feed:     r,
		topic:    fmt.Sprintf("realtime:menu360-%s-%d", spec.Table, r.seq),
		joinRef:  strconv.FormatUint(r.ref, 10),
		onChange: onChange,
		onStatus: onStatus,
	}
	r.channels[ch.topic] = ch
	r.mu.Unlock()

	change := map[string]any{
		"event":  eventName(spec.Event),
		"schema": "public",
		"table":  string(spec.Table),
	}
	if spec.Filter != "" {
		change["filter"] = spec.Filter
	}
	join := map[string]any{
		"topic":    ch.topic,
		"event":    "phx_join",
		"ref":      ch.joinRef,
		"join_ref": ch.joinRef,
		"payload": map[string]any{
			"config": map[string]any{
				"broadcast":        map[string]any{"self": false},
				"presence":         map[string]any{"key": ""},
				"postgres_changes": []any{change},
			},
		},
	}
	if err := r.write(conn, join); err != nil {
		r.forget(ch.topic)
		return nil, fmt.Errorf("realtime: join %s: %w", spec.Table, err)
	}

	r.log.WithFields(logrus.Fields{"topic": ch.topic, "filter": spec.Filter}).Debug("[realtime] join sent")
	return ch, nil
}

// Unsubscribe sends phx_leave once. The connection closes with the last channel.
func (c *channel) Unsubscribe(ctx context.Context) error {
	var err error
	c.leaveOnce.Do(func() {
		r := c.feed
		last := r.forget(c.topic)

		r.mu.Lock()
		conn := r.conn
		r.ref++
		ref := strconv.FormatUint(r.ref, 10)
		r.mu.Unlock()

		if conn != nil {
			err = r.write(conn, map[string]any{
				"topic":    c.topic,
				"event":    "phx_leave",
				"ref":      ref,
				"join_ref": c.joinRef,
				"payload":  map[string]any{},
			})
		}
		if last {
			r.Close()
		}
	})
	return err
}

func (r *Realtime) connect(ctx context.Context) (*websocket.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn, nil
	}

	conn, _, err := r.dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", errors.Join(domain.ErrUnavailable, err))
	}
	r.conn = conn
	r.done = make(chan struct{})

	go r.readLoop(conn, r.done)
	go r.heartbeatLoop(conn, r.done)

	r.log.Info("[realtime] connected")
	return conn, nil
}

// Close drops the connection. Remaining channels are not notified.
func (r *Realtime) Close() {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	if r.done != nil {
		close(r.done)
		r.done = nil
	}
	r.mu.Unlock()

	if conn == nil {
		return
	}
	r.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	r.writeMu.Unlock()
	_ = conn.Close()
	r.log.Info("[realtime] disconnected")
}

// forget removes a channel and reports whether it was the last one.
func (r *Realtime) forget(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, topic)
	return len(r.channels) == 0
}

func (r *Realtime) write(conn *websocket.Conn, msg any) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

func (r *Realtime) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			r.connectionLost(conn, done, err)
			return
		}
		r.dispatch(msg)
	}
}

func (r *Realtime) heartbeatLoop(conn *websocket.Conn, done chan struct{}) {
	t := time.NewTicker(r.heartbeat)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			r.mu.Lock()
			r.ref++
			ref := strconv.FormatUint(r.ref, 10)
			r.mu.Unlock()
			if err := r.write(conn, map[string]any{
				"topic": "phoenix", "event": "heartbeat", "payload": map[string]any{}, "ref": ref,
			}); err != nil {
				r.log.WithError(err).Warn("[realtime] heartbeat failed")
			}
		}
	}
}

// connectionLost fails every channel still attached to conn. Nothing is
// retried; the owner decides whether to watch again.
func (r *Realtime) connectionLost(conn *websocket.Conn, done chan struct{}, err error) {
	r.mu.Lock()
	if r.conn != conn {
		r.mu.Unlock()
		return
	}
	r.conn = nil
	if r.done == done {
		close(r.done)
		r.done = nil
	}
	lost := make([]*channel, 0, len(r.channels))
	for topic, ch := range r.channels {
		lost = append(lost, ch)
		delete(r.channels, topic)
	}
	r.mu.Unlock()
	_ = conn.Close()

	r.log.WithError(err).Warn("[realtime] connection lost")
	for _, ch := range lost {
		ch.status(domain.StateError, fmt.Errorf("%w: %v", errFeedClosed, err))
	}
}

func (r *Realtime) dispatch(msg []byte) {
	env := gjson.ParseBytes(msg)
	topic := env.Get("topic").String()
	if topic == "phoenix" {
		return
	}

	r.mu.Lock()
	ch := r.channels[topic]
	r.mu.Unlock()
	if ch == nil {
		return
	}

	payload := env.Get("payload")
	switch env.Get("event").String() {
	case "phx_reply":
		if env.Get("ref").String() != ch.joinRef {
			return
		}
		if payload.Get("status").String() == "ok" {
			ch.status(domain.StateSubscribed, nil)
			return
		}
		ch.status(domain.StateError, fmt.Errorf("join rejected: %s", reason(payload.Get("response"))))
	case "phx_error":
		ch.status(domain.StateError, errors.New("channel error"))
	case "system":
		if payload.Get("status").String() == "error" {
			ch.status(domain.StateError, fmt.Errorf("system: %s", payload.Get("message").String()))
		}
	case "postgres_changes":
		ev, err := ParseChange(payload)
		if err != nil {
			r.log.WithError(err).WithField("topic", topic).Warn("[realtime] unreadable change")
			return
		}
		if ch.onChange != nil {
			ch.onChange(context.Background(), ev)
		}
	}
}

func (c *channel) status(state domain.SubscriptionState, err error) {
	if c.onStatus != nil {
		c.onStatus(state, err)
	}
}

// ParseChange reads a postgres_changes payload. Both the current shape
// ({"data": {...}}) and the legacy flat shape are accepted.
func ParseChange(payload gjson.Result) (domain.ChangeEvent, error) {
	data := payload.Get("data")
	if !data.Exists() {
		data = payload
	}

	op, err := domain.ParseChangeOp(data.Get("type").String())
	if err != nil || op == domain.OpAll {
		return domain.ChangeEvent{}, domain.NewValidationError("type", "unknown change type "+data.Get("type").String())
	}
	table := data.Get("table").String()
	if table == "" {
		return domain.ChangeEvent{}, domain.NewValidationError("table", "is missing")
	}

	ev := domain.ChangeEvent{Op: op, Table: domain.Kind(table)}
	if rec := data.Get("record"); rec.IsObject() {
		ev.New = []byte(rec.Raw)
	}
	if old := data.Get("old_record"); old.IsObject() {
		ev.Old = []byte(old.Raw)
	}
	if ts := data.Get("commit_timestamp").String(); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ev.CommitTime = t
		}
	}
	return ev, nil
}

func eventName(op domain.ChangeOp) string {
	switch op {
	case domain.OpInsert, domain.OpUpdate, domain.OpDelete:
		return strings.ToUpper(string(op))
	}
	return "*"
}

func reason(resp gjson.Result) string {
	if r := resp.Get("reason").String(); r != "" {
		return r
	}
	if resp.Raw != "" {
		return resp.Raw
	}
	return "unknown"
}

var _ outbound.ChangeFeed = (*Realtime)(nil)
