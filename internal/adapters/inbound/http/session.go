package httpin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"menu360/internal/core/domain"
	"menu360/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	SessionCookie = "m360_session"
	sessionMaxAge = 30 * 24 * time.Hour
	bindingTTL    = 12 * time.Hour
)

// Notices a session may dismiss. Each has its own flag so hiding the demo-data
// notice never hides real error notices.
const (
	NoticeDemoData = "demo-data"
	NoticeErrors   = "errors"
)

type ctxKey int

const (
	sessionKey ctxKey = iota
	authKey
)

// Sessions issues the anonymous customer cookie and keeps each session's
// table binding in the KV store.
type Sessions struct {
	kv     outbound.KVStore
	secure bool
	now    func() time.Time
}

func NewSessions(kv outbound.KVStore, secureCookies bool) *Sessions {
	return &Sessions{kv: kv, secure: secureCookies, now: time.Now}
}

func bindingKey(sessionID string) string { return "binding:" + sessionID }

func noticeKey(sessionID, notice string) string {
	return "notice:" + sessionID + ":" + notice
}

// Middleware makes sure every request carries a session id.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(SessionCookie); err == nil {
			if _, perr := uuid.Parse(c.Value); perr == nil {
				id = c.Value
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(sessionMaxAge.Seconds()),
				HttpOnly: true,
				Secure:   s.secure,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, id)))
	})
}

func sessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey).(string)
	return id
}

// Binding returns the last table the session scanned. ok is false when the
// session has not scanned one.
func (s *Sessions) Binding(ctx context.Context, sessionID string) (domain.TableBinding, bool, error) {
	raw, err := s.kv.Get(ctx, bindingKey(sessionID))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.TableBinding{}, false, nil
	}
	if err != nil {
		return domain.TableBinding{}, false, err
	}
	var b domain.TableBinding
	if err := json.Unmarshal(raw, &b); err != nil || b.RestaurantID == "" || b.TableID == "" {
		_ = s.kv.Delete(ctx, bindingKey(sessionID))
		return domain.TableBinding{}, false, nil
	}
	return b, true, nil
}

// CartSession resolves the request's (restaurant, table, session) triple.
func (s *Sessions) CartSession(r *http.Request) (domain.CartSession, error) {
	id := sessionID(r.Context())
	b, ok, err := s.Binding(r.Context(), id)
	if err != nil {
		return domain.CartSession{}, err
	}
	if !ok {
		return domain.CartSession{}, domain.NewValidationError("table", "scan the table QR code first")
	}
	return domain.CartSession{RestaurantID: b.RestaurantID, TableID: b.TableID, SessionID: id}, nil
}

// ScanTable handles GET /r/{restaurantID}/t/{tableID}.
func (s *Sessions) ScanTable(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	b := domain.TableBinding{
		RestaurantID: vars["restaurantID"],
		TableID:      vars["tableID"],
		ScannedAt:    s.now().UTC(),
	}
	raw, err := json.Marshal(b)
	if err != nil {
		writeError(w, nil, err)
		return
	}
	if err := s.kv.Set(r.Context(), bindingKey(sessionID(r.Context())), raw, bindingTTL); err != nil {
		writeError(w, nil, fmt.Errorf("store table binding: %w", err))
		return
	}
	q := url.Values{"restaurant": {b.RestaurantID}, "table": {b.TableID}}
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
}

func (s *Sessions) Dismissed(ctx context.Context, sessionID string) map[string]bool {
	out := map[string]bool{NoticeDemoData: false, NoticeErrors: false}
	for notice := range out {
		if _, err := s.kv.Get(ctx, noticeKey(sessionID, notice)); err == nil {
			out[notice] = true
		}
	}
	return out
}

func (s *Sessions) Dismiss(ctx context.Context, sessionID, notice string) error {
	if notice != NoticeDemoData && notice != NoticeErrors {
		return domain.NewValidationError("notice", "unknown notice "+notice)
	}
	return s.kv.Set(ctx, noticeKey(sessionID, notice), []byte("1"), sessionMaxAge)
}
