// Package api exposes the quick-unlock gate over a small local REST API.
//
// All handlers drive one unlock.Controller. Requests are serialised because
// the controller models a single user's flow.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-openapi/runtime/middleware"

	"github.com/vdutts/vault/pin"
	"github.com/vdutts/vault/unlock"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	mu    sync.Mutex
	ctrl  *unlock.Controller
	store *pin.Store

	audit          *auditLogger
	allowedOrigins []string
	alertFn        AlertFunc
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithAllowedOrigins enables CORS for the given browser origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(a *API) {
		a.allowedOrigins = append(a.allowedOrigins, origins...)
	}
}

// WithAlertFunc registers a callback for failure spikes (incorrect PINs and
// rejected primary logins).
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// New creates a new API instance around ctrl. store must be the credential
// store ctrl was built with; it backs the read-only status endpoint.
func New(ctrl *unlock.Controller, store *pin.Store, opts ...Option) *API {
	a := &API{
		ctrl:  ctrl,
		store: store,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	if a.alertFn != nil {
		a.audit.metrics = newMetricsCollector(a.alertFn)
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)
	if len(a.allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   a.allowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Get("/state", a.GetState)

	r.Post("/auth/login", a.Login)
	r.Post("/auth/logout", a.Logout)

	r.Route("/pin", func(r chi.Router) {
		r.Get("/status", a.PinStatus)
		r.Post("/setup", a.SetupPin)
		r.Post("/skip", a.SkipSetup)
		r.Post("/entry", a.EnterPin)
		r.Post("/forgot", a.ForgotPin)
	})

	return r
}

// stateLocked snapshots the controller. Callers hold a.mu.
func (a *API) stateLocked() StateResponse {
	resp := StateResponse{
		State:     a.ctrl.State().String(),
		Condition: a.ctrl.Condition(),
		Entered:   a.ctrl.Entered(),
	}
	if sess, ok := a.ctrl.Session(); ok {
		resp.Unlocked = true
		resp.Source = string(sess.Source)
	}
	return resp
}
