package domain

import (
	"encoding/json"
	"slices"
)

type AuthStatus string

const (
	AuthChecking      AuthStatus = "checking"
	AuthAnonymous     AuthStatus = "anonymous"
	AuthAuthenticated AuthStatus = "authenticated"
)

// User is the lightweight staff profile carried by a verified token.
type User struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	Name          string   `json:"name,omitempty"`
	Role          string   `json:"role"`
	RestaurantIDs []string `json:"restaurant_ids"`
}

func (u User) IsAdmin() bool {
	return u.Role == "admin" || u.Role == "service_role"
}

// CanAccess reports whether the user may read or write the tenant's data.
func (u User) CanAccess(restaurantID string) bool {
	return u.IsAdmin() || slices.Contains(u.RestaurantIDs, restaurantID)
}

// AuthState is a closed variant: only the authenticated state carries a user.
// The zero value is the checking state.
type AuthState struct {
	status AuthStatus
	user   *User
}

func Checking() AuthState  { return AuthState{status: AuthChecking} }
func Anonymous() AuthState { return AuthState{status: AuthAnonymous} }

func Authenticated(u User) AuthState {
	return AuthState{status: AuthAuthenticated, user: &u}
}

func (s AuthState) Status() AuthStatus {
	if s.status == "" {
		return AuthChecking
	}
	return s.status
}

func (s AuthState) User() (User, bool) {
	if s.status != AuthAuthenticated || s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

func (s AuthState) MarshalJSON() ([]byte, error) {
	out := struct {
		Status AuthStatus `json:"status"`
		User   *User      `json:"user,omitempty"`
	}{Status: s.Status()}
	if u, ok := s.User(); ok {
		out.User = &u
	}
	return json.Marshal(out)
}
