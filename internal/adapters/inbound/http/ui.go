package httpin

import (
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"menu360/internal/core/domain"
	"menu360/internal/ports/inbound"
	"menu360/internal/web"

	"github.com/starfederation/datastar-go/datastar"
)

// ToastFeed is the read side of the toast hub.
type ToastFeed interface {
	Since(after uint64, scopes ...string) []domain.Toast
	Subscribe(scopes ...string) (<-chan struct{}, func())
}

type UI struct {
	carts    inbound.CartUseCase
	sessions *Sessions
	toasts   ToastFeed
	poll     time.Duration
}

func NewUI(d Deps) *UI {
	return &UI{carts: d.Carts, sessions: d.Sessions, toasts: d.Toasts, poll: 2 * time.Second}
}

type uiSignals struct {
	LastToast uint64 `json:"last_toast"`
}

func (u *UI) Index(w http.ResponseWriter, r *http.Request) {
	http.FileServer(http.FS(web.Static())).ServeHTTP(w, r)
}

// scopes lists the toast scopes a request may see: its own session, the
// scanned table, and every restaurant a signed-in staff member works for.
func (u *UI) scopes(r *http.Request, s *domain.CartSession) []string {
	out := []string{domain.SessionScope(sessionID(r.Context()))}
	if s != nil {
		out = append(out, domain.TableScope(s.RestaurantID, s.TableID))
	}
	if user, ok := authState(r.Context()).User(); ok {
		for _, rid := range user.RestaurantIDs {
			out = append(out, domain.StaffScope(rid))
		}
	}
	return out
}

// Stream keeps the page's cart and toast list current until the client goes
// away. The cart is looked up again on every pass, so a store reloaded after
// eviction is picked up. It is re-rendered when the store or its version
// changes; toasts are appended.
func (u *UI) Stream(w http.ResponseWriter, r *http.Request) {
	signals := &uiSignals{}
	if err := datastar.ReadSignals(r, signals); err != nil {
		signals.LastToast = 0
	}
	sse := datastar.NewSSE(w, r)

	var (
		cart    inbound.Cart
		session *domain.CartSession
	)
	if s, err := u.sessions.CartSession(r); err == nil {
		if c, err := u.carts.Cart(r.Context(), s); err == nil {
			cart, session = c, &s
		}
	}
	if cart == nil {
		_ = sse.PatchElements(`<div id="cart"><p class="muted">Scan the QR code on your table to start an order.</p></div>`)
	}

	scopes := u.scopes(r, session)
	wake, cancel := u.toasts.Subscribe(scopes...)
	defer cancel()
	ticker := time.NewTicker(u.poll)
	defer ticker.Stop()

	lastSeq := signals.LastToast
	var (
		shown       inbound.Cart
		lastVersion uint64
	)
	for {
		if session != nil {
			if c, err := u.carts.Cart(r.Context(), *session); err == nil {
				cart = c
			}
		}
		if cart != nil && (cart != shown || cart.Version() != lastVersion) {
			shown, lastVersion = cart, cart.Version()
			if err := sse.PatchElements(renderCart(cart)); err != nil {
				return
			}
		}

		for _, t := range u.toasts.Since(lastSeq, scopes...) {
			if err := sse.PatchElements(renderToast(t),
				datastar.WithSelectorID("toasts"), datastar.WithModeAppend()); err != nil {
				return
			}
			lastSeq = t.Seq
		}
		if err := sse.MarshalAndPatchSignals(uiSignals{LastToast: lastSeq}); err != nil {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-wake:
		case <-ticker.C:
		}
	}
}

func renderCart(c inbound.Cart) string {
	var b strings.Builder
	b.WriteString(`<div id="cart">`)
	lines := c.Lines()
	if len(lines) == 0 {
		b.WriteString(`<p class="muted">Your cart is empty.</p></div>`)
		return b.String()
	}
	b.WriteString(`<ul>`)
	for _, l := range lines {
		fmt.Fprintf(&b, `<li data-item="%s"><span>%d × %s</span><span>%s</span></li>`,
			html.EscapeString(l.ItemID), l.Quantity, html.EscapeString(l.Name),
			formatMoney(float64(l.Quantity)*l.UnitPrice))
	}
	t := c.Totals()
	fmt.Fprintf(&b, `</ul><p class="total">%d items · %s</p></div>`, t.Items, formatMoney(t.Price))
	return b.String()
}

func renderToast(t domain.Toast) string {
	return fmt.Sprintf(`<div class="toast toast-%s" id="toast-%d">%s</div>`,
		t.Level, t.Seq, html.EscapeString(t.Message))
}

func formatMoney(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
