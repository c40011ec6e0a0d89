package domain

import "time"

type ToastLevel string

const (
	ToastInfo    ToastLevel = "info"
	ToastSuccess ToastLevel = "success"
	ToastError   ToastLevel = "error"
)

// Toast is a transient user-visible notification.
type Toast struct {
	Seq     uint64     `json:"seq"`
	Level   ToastLevel `json:"level"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

func InfoToast(msg string) Toast    { return Toast{Level: ToastInfo, Message: msg} }
func SuccessToast(msg string) Toast { return Toast{Level: ToastSuccess, Message: msg} }
func ErrorToast(msg string) Toast   { return Toast{Level: ToastError, Message: msg} }

// Toast scopes.

func StaffScope(restaurantID string) string { return "staff:" + restaurantID }

func TableScope(restaurantID, tableID string) string {
	return "table:" + restaurantID + ":" + tableID
}

func SessionScope(sessionID string) string { return "session:" + sessionID }
