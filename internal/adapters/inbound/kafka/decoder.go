package kafkain

import (
	"errors"
	"strings"
	"time"

	"menu360/internal/core/domain"

	"github.com/tidwall/gjson"
)

// ErrTombstone marks an empty message value (a compacted delete marker).
var ErrTombstone = errors.New("tombstone")

var debeziumOps = map[string]domain.ChangeOp{
	"c": domain.OpInsert,
	"r": domain.OpInsert,
	"u": domain.OpUpdate,
	"d": domain.OpDelete,
}

// DecodeChange accepts a Debezium envelope (with or without the schema
// wrapper) or a database-webhook body ({"type","table","record","old_record"}).
func DecodeChange(b []byte) (domain.ChangeEvent, error) {
	if len(strings.TrimSpace(string(b))) == 0 || string(b) == "null" {
		return domain.ChangeEvent{}, ErrTombstone
	}
	if !gjson.ValidBytes(b) {
		return domain.ChangeEvent{}, domain.NewValidationError("value", "not valid JSON")
	}

	root := gjson.ParseBytes(b)
	if p := root.Get("payload"); p.IsObject() {
		root = p
	}

	if op := root.Get("op"); op.Exists() {
		return decodeDebezium(root, op.String())
	}
	return decodeWebhook(root)
}

func decodeDebezium(root gjson.Result, op string) (domain.ChangeEvent, error) {
	kind, ok := debeziumOps[op]
	if !ok {
		return domain.ChangeEvent{}, domain.NewValidationError("op", "unsupported debezium op "+op)
	}
	table := root.Get("source.table").String()
	if table == "" {
		return domain.ChangeEvent{}, domain.NewValidationError("source.table", "is missing")
	}

	ev := domain.ChangeEvent{Op: kind, Table: domain.Kind(table)}
	if after := root.Get("after"); after.IsObject() {
		ev.New = []byte(after.Raw)
	}
	if before := root.Get("before"); before.IsObject() {
		ev.Old = []byte(before.Raw)
	}
	if ms := root.Get("ts_ms").Int(); ms > 0 {
		ev.CommitTime = time.UnixMilli(ms).UTC()
	}
	return ev, nil
}

func decodeWebhook(root gjson.Result) (domain.ChangeEvent, error) {
	op, err := domain.ParseChangeOp(root.Get("type").String())
	if err != nil || op == domain.OpAll {
		return domain.ChangeEvent{}, domain.NewValidationError("type", "unknown change type "+root.Get("type").String())
	}
	table := root.Get("table").String()
	if table == "" {
		return domain.ChangeEvent{}, domain.NewValidationError("table", "is missing")
	}

	ev := domain.ChangeEvent{Op: op, Table: domain.Kind(table)}
	if rec := root.Get("record"); rec.IsObject() {
		ev.New = []byte(rec.Raw)
	}
	if old := root.Get("old_record"); old.IsObject() {
		ev.Old = []byte(old.Raw)
	}
	if ts := root.Get("commit_timestamp").String(); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ev.CommitTime = t
		}
	}
	return ev, nil
}
