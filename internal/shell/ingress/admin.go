package ingress

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pressedge/pressedge/internal/core/route"
	"github.com/pressedge/pressedge/internal/shell/acme"
	"github.com/pressedge/pressedge/internal/shell/store"
)

// =============================================================================
// Admin API
// =============================================================================

// AdminConfig holds admin server configuration.
type AdminConfig struct {
	Address      string        // e.g., "0.0.0.0:8080"
	ReadTimeout  time.Duration // HTTP read timeout
	WriteTimeout time.Duration // HTTP write timeout
}

// DefaultAdminConfig returns sensible default configuration.
func DefaultAdminConfig() AdminConfig {
	return AdminConfig{
		Address:      "0.0.0.0:8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Admin serves the management API: health, route table inspection,
// certificate lifecycle, and deployment records.
type Admin struct {
	table  *route.Table
	certs  *acme.Manager
	store  store.Store
	logger *slog.Logger
	config AdminConfig
	ready  func() bool
}

// NewAdmin creates the admin server. The certificate manager and store may
// be nil; their endpoints then answer 404. ready reports whether the daemon
// has completed its initial container sync.
func NewAdmin(cfg AdminConfig, table *route.Table, certs *acme.Manager, st store.Store, ready func() bool, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Admin{
		table:  table,
		certs:  certs,
		store:  st,
		logger: logger.With("component", "admin"),
		config: cfg,
		ready:  ready,
	}
}

// Router builds the chi router with all admin routes mounted.
func (a *Admin) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", a.handleHealth)
	r.Get("/ready", a.handleReady)
	r.Get("/openapi.json", a.handleOpenAPI)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/routes", a.handleRoutes)
		r.Get("/certificates", a.handleCertificates)
		r.Get("/deployments", a.handleDeployments)
		r.Get("/deployments/{id}", a.handleDeployment)
		r.Get("/events", a.handleRouteEvents)
	})

	return r
}

// Start starts the admin server (non-blocking).
func (a *Admin) Start() *http.Server {
	srv := &http.Server{
		Addr:         a.config.Address,
		Handler:      a.Router(),
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
	}

	go func() {
		a.logger.Info("starting admin server", "address", a.config.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("admin server error", "error", err)
		}
	}()

	return srv
}

// =============================================================================
// Handlers
// =============================================================================

// HealthResponse is the JSON response for the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Routes int    `json:"routes"`
}

func (a *Admin) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Routes: a.table.Len(),
	})
}

func (a *Admin) handleReady(w http.ResponseWriter, r *http.Request) {
	if !a.ready() {
		a.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// RouteView is the JSON rendering of one route table entry.
type RouteView struct {
	Name     string `json:"name"`
	Rule     string `json:"rule"`
	Service  string `json:"service"`
	Address  string `json:"address"`
	Port     int    `json:"port"`
	TLS      bool   `json:"tls"`
	Resolver string `json:"resolver,omitempty"`
	Owner    string `json:"owner"`
}

func (a *Admin) handleRoutes(w http.ResponseWriter, r *http.Request) {
	snapshot := a.table.Snapshot()
	views := make([]RouteView, 0, len(snapshot))
	for _, rt := range snapshot {
		views = append(views, RouteView{
			Name:     rt.Name,
			Rule:     rt.Rule.String(),
			Service:  rt.Target.Service,
			Address:  rt.Target.Address,
			Port:     rt.Target.Port,
			TLS:      rt.Target.TLS,
			Resolver: rt.Target.Resolver,
			Owner:    rt.Owner,
		})
	}
	a.writeJSON(w, http.StatusOK, views)
}

func (a *Admin) handleCertificates(w http.ResponseWriter, r *http.Request) {
	if a.certs == nil {
		http.NotFound(w, r)
		return
	}
	a.writeJSON(w, http.StatusOK, a.certs.Statuses())
}

func (a *Admin) handleDeployments(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		http.NotFound(w, r)
		return
	}
	records, err := a.store.ListDeployments(r.Context(), store.DefaultListOptions())
	if err != nil {
		a.serveStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, records)
}

func (a *Admin) handleDeployment(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		http.NotFound(w, r)
		return
	}
	rec, err := a.store.GetDeployment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.serveStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, rec)
}

func (a *Admin) handleRouteEvents(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		http.NotFound(w, r)
		return
	}
	events, err := a.store.ListRouteEvents(r.Context(), store.DefaultListOptions())
	if err != nil {
		a.serveStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, events)
}

func (a *Admin) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	doc, err := openAPIDocument()
	if err != nil {
		a.logger.Error("failed to build openapi document", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(doc)
}

// =============================================================================
// Helpers
// =============================================================================

func (a *Admin) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("failed to encode response", "error", err)
	}
}

func (a *Admin) serveStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		a.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	a.logger.Error("store query failed", "error", err)
	a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
