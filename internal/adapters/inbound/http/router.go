package httpin

import (
	"net/http"

	"menu360/internal/app/metrics"

	"github.com/gorilla/mux"
)

// NewRouter wires every route. Middleware order: metrics, session, auth.
func NewRouter(h *Handlers, ui *UI) http.Handler {
	r := mux.NewRouter()
	r.Use(h.sessions.Middleware, h.auth.Middleware)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	h.Register(r)

	r.HandleFunc("/ui/stream", ui.Stream).Methods(http.MethodGet)
	r.PathPrefix("/").HandlerFunc(ui.Index).Methods(http.MethodGet)

	return metrics.InstrumentHandler(r)
}
