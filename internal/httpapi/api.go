package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"taskhive.org/internal/auth"
	"taskhive.org/internal/config"
	"taskhive.org/internal/obs"
	"taskhive.org/internal/ratelimit"
)

// ReadyProbe checks the dependencies readiness needs (ping the database).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. Every route composes the same chain: rate class,
// authentication, global gate, project gate, then the handler.
type API struct {
	mux          *http.ServeMux
	sessions     *auth.Service
	resolver     *auth.Resolver
	store        auth.Store
	limiter      ratelimit.Limiter
	cookies      config.CookieConfig
	readyProbe   ReadyProbe
	version      string
	storeTimeout time.Duration
}

func New(sessions *auth.Service, resolver *auth.Resolver, store auth.Store, limiter ratelimit.Limiter, cookies config.CookieConfig, rp ReadyProbe, version string, storeTimeout time.Duration) *API {
	a := &API{
		mux:          http.NewServeMux(),
		sessions:     sessions,
		resolver:     resolver,
		store:        store,
		limiter:      limiter,
		cookies:      cookies,
		readyProbe:   rp,
		version:      version,
		storeTimeout: storeTimeout,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// session + account lifecycle
	a.mux.HandleFunc("/v1/auth/", a.handleAuth)

	// privileged account administration
	a.mux.HandleFunc("/v1/admin/accounts/", a.handleAdminAccounts)

	// projects, members, tasks
	a.mux.HandleFunc("/v1/projects", a.handleProjectsCollection)
	a.mux.HandleFunc("/v1/projects/", a.handleProjectScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.limit(ratelimit.Global, h)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// storeContext bounds one request's store round trips.
func (a *API) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	if a.storeTimeout <= 0 {
		return r.Context(), func() {}
	}
	return context.WithTimeout(r.Context(), a.storeTimeout)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "taskhive-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "taskhive-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
