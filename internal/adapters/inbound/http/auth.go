package httpin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"menu360/internal/core/domain"
	"menu360/internal/ports/outbound"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	AccessTokenCookie  = "sb-access-token"
	RefreshTokenCookie = "sb-refresh-token"
	profileTTL         = 15 * time.Minute
)

var errNoToken = errors.New("no access token")

// Authenticator verifies Supabase access tokens (HS256) and caches the
// resulting staff profile in the KV store.
type Authenticator struct {
	secret []byte
	kv     outbound.KVStore
	log    *logrus.Entry
	now    func() time.Time
}

func NewAuthenticator(secret string, kv outbound.KVStore, log *logrus.Entry) *Authenticator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Authenticator{secret: []byte(secret), kv: kv, log: log, now: time.Now}
}

// profileKey ties a cached profile to the token it was built from, so a
// re-issued token with other claims never reads a stale profile.
func profileKey(userID, raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return "profile:" + userID + ":" + hex.EncodeToString(sum[:12])
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(tok)
		}
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// Verify turns a token into a user. Any parse or signature problem is
// ErrForbidden.
func (a *Authenticator) Verify(ctx context.Context, raw string) (domain.User, error) {
	if raw == "" {
		return domain.User{}, errNoToken
	}
	if len(a.secret) == 0 {
		return domain.User{}, fmt.Errorf("%w: token verification is not configured", domain.ErrForbidden)
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", domain.ErrForbidden, err)
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return domain.User{}, fmt.Errorf("%w: token has no subject", domain.ErrForbidden)
	}
	if u, ok := a.cached(ctx, sub, raw); ok {
		return u, nil
	}

	u := userFromClaims(sub, claims)
	ttl := profileTTL
	if exp, _ := claims.GetExpirationTime(); exp != nil {
		if left := exp.Sub(a.now()); left < ttl {
			ttl = left
		}
	}
	if b, err := json.Marshal(u); err == nil && ttl > 0 {
		if err := a.kv.Set(ctx, profileKey(sub, raw), b, ttl); err != nil {
			a.log.WithError(err).Warn("[auth] profile not cached")
		}
	}
	return u, nil
}

func (a *Authenticator) cached(ctx context.Context, userID, token string) (domain.User, bool) {
	b, err := a.kv.Get(ctx, profileKey(userID, token))
	if err != nil {
		return domain.User{}, false
	}
	var u domain.User
	if err := json.Unmarshal(b, &u); err != nil || u.ID != userID {
		return domain.User{}, false
	}
	return u, true
}

func userFromClaims(sub string, claims jwt.MapClaims) domain.User {
	u := domain.User{ID: sub, RestaurantIDs: []string{}}
	u.Email, _ = claims["email"].(string)
	u.Role, _ = claims["role"].(string)

	if app, ok := claims["app_metadata"].(map[string]any); ok {
		if role, ok := app["role"].(string); ok && role != "" {
			u.Role = role
		}
		if ids, ok := app["restaurant_ids"].([]any); ok {
			for _, id := range ids {
				if s, ok := id.(string); ok && s != "" {
					u.RestaurantIDs = append(u.RestaurantIDs, s)
				}
			}
		}
	}
	if meta, ok := claims["user_metadata"].(map[string]any); ok {
		u.Name, _ = meta["name"].(string)
	}
	return u
}

// Middleware resolves the AuthState of every request. Bad tokens fall back
// to anonymous.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := domain.Anonymous()
		u, err := a.Verify(r.Context(), bearerToken(r))
		switch {
		case err == nil:
			state = domain.Authenticated(u)
		case !errors.Is(err, errNoToken):
			a.log.WithError(err).Debug("[auth] token rejected")
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), authKey, state)))
	})
}

// Logout forgets the cached profile and clears the auth cookies.
func (a *Authenticator) Logout(w http.ResponseWriter, r *http.Request) {
	if u, ok := authState(r.Context()).User(); ok {
		if err := a.kv.Delete(r.Context(), profileKey(u.ID, bearerToken(r))); err != nil {
			a.log.WithError(err).Warn("[auth] profile not removed")
		}
	}
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	}
	w.WriteHeader(http.StatusNoContent)
}

func authState(ctx context.Context) domain.AuthState {
	if s, ok := ctx.Value(authKey).(domain.AuthState); ok {
		return s
	}
	return domain.Anonymous()
}

// requireStaff checks that the request is authenticated and may touch the
// tenant. An empty restaurantID only requires an admin.
func requireStaff(ctx context.Context, restaurantID string) (domain.User, error) {
	u, ok := authState(ctx).User()
	if !ok {
		return domain.User{}, fmt.Errorf("%w: sign in required", domain.ErrForbidden)
	}
	if restaurantID == "" {
		if !u.IsAdmin() {
			return domain.User{}, fmt.Errorf("%w: admin only", domain.ErrForbidden)
		}
		return u, nil
	}
	if !u.CanAccess(restaurantID) {
		return domain.User{}, fmt.Errorf("%w: no access to restaurant %s", domain.ErrForbidden, restaurantID)
	}
	return u, nil
}
