// Package adminhttp exposes a small read-mostly HTTP surface over a
// set of policy runners and their trigger loop: status, Prometheus
// metrics, and a manual one-shot run trigger. It deliberately covers
// none of the identity/API-key/upstream/content-scanning surface a
// general-purpose admin API would — there is no domain analog for any
// of that here.
package adminhttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/catalog"
	"github.com/cea-hpc/robinhood-sub006/internal/service/runner"
	"github.com/cea-hpc/robinhood-sub006/internal/service/triggerloop"
)

// Deps bundles the handler's dependencies: the catalog (to read back
// persisted run-summary variables), one Runner per configured policy
// keyed by policy name, and the trigger loop's status snapshot.
type Deps struct {
	Catalog   *catalog.Gateway
	Runners   map[string]*runner.Runner
	Triggers  *triggerloop.Loop
	Registry  *prometheus.Registry
	Logger    *slog.Logger
	StartedAt time.Time
}

// Handler serves the admin HTTP routes.
type Handler struct {
	deps Deps
}

// New builds a Handler. deps.Logger defaults to slog.Default();
// deps.Registry has no default: when it is nil, GET /metrics is not
// mounted.
func New(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}
	return &Handler{deps: deps}
}

// Routes returns an http.Handler with every admin route registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", h.handleStatus)
	mux.HandleFunc("POST /run", h.handleRun)
	if h.deps.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.deps.Registry, promhttp.HandlerOpts{Registry: h.deps.Registry}))
	}
	return mux
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.deps.Logger.Error("failed to encode admin response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
