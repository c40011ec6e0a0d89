package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
	OpAll    ChangeOp = "*"
)

func ParseChangeOp(s string) (ChangeOp, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "insert":
		return OpInsert, nil
	case "update":
		return OpUpdate, nil
	case "delete":
		return OpDelete, nil
	case "*":
		return OpAll, nil
	}
	return "", NewValidationError("op", "unknown change operation "+s)
}

// ChangeEvent is one row change pushed by the backend. It is consumed once.
type ChangeEvent struct {
	Op         ChangeOp        `json:"op"`
	Table      Kind            `json:"table"`
	New        json.RawMessage `json:"new,omitempty"`
	Old        json.RawMessage `json:"old,omitempty"`
	CommitTime time.Time       `json:"commit_time"`
}

// SubscriptionSpec selects the notifications a subscription receives.
// Filter uses the column=op.value form, e.g. "restaurant_id=eq.42".
type SubscriptionSpec struct {
	Table  Kind
	Event  ChangeOp
	Filter string
}

type SubscriptionState int

const (
	StateUnsubscribed SubscriptionState = iota
	StateSubscribing
	StateSubscribed
	StateError
)

func (s SubscriptionState) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	case StateError:
		return "error"
	}
	return "unknown"
}

// CanTransition encodes Unsubscribed -> Subscribing -> Subscribed -> (Error | Unsubscribed).
// There is no way back from Error other than tearing down and subscribing again.
func (s SubscriptionState) CanTransition(next SubscriptionState) bool {
	switch s {
	case StateUnsubscribed:
		return next == StateSubscribing
	case StateSubscribing:
		return next == StateSubscribed || next == StateError || next == StateUnsubscribed
	case StateSubscribed:
		return next == StateError || next == StateUnsubscribed
	case StateError:
		return next == StateUnsubscribed
	}
	return false
}
