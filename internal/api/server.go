package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/alerting"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/submission"
	"github.com/opensource-finance/kestrel/internal/throttle"
)

// Deps holds the collaborators the API serves.
type Deps struct {
	Repo        domain.Repository
	Cache       domain.Cache
	Bus         domain.EventBus
	Engine      *rules.Engine
	Submissions *submission.Service
	Alerts      *alerting.Manager
	Limiter     *throttle.Limiter

	// AsyncIntake lets submissions with ?async=true be queued on the bus.
	AsyncIntake bool

	// Tracing wraps every request in an OpenTelemetry span.
	Tracing bool

	Version string
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORS)
	router.Use(Recover)
	if deps.Tracing {
		router.Use(Trace)
	}
	router.Use(LogRequests)
	router.Use(metrics.Middleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Operational endpoints (no account required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", metrics.Handler())

	// Rule management is global
	router.Route("/rules", func(r chi.Router) {
		r.Get("/", handler.ListRules)
		r.Get("/{id}", handler.GetRule)
		r.Post("/", handler.CreateRule)
		r.Post("/reload", handler.ReloadRules)
	})

	// Account-scoped routes
	router.Group(func(r chi.Router) {
		r.Use(RequireAccount)
		r.Use(Idempotent(deps.Cache))

		r.Route("/suppliers", func(r chi.Router) {
			r.Post("/", handler.CreateSupplier)
			r.Get("/", handler.ListSuppliers)
			r.Get("/{id}", handler.GetSupplier)
			r.Put("/{id}/status", handler.UpdateSupplierStatus)
		})

		r.Route("/invoices", func(r chi.Router) {
			r.With(RateLimit(deps.Limiter)).Post("/", handler.SubmitInvoice)
			r.Get("/", handler.ListInvoices)
			r.Get("/{id}", handler.GetInvoice)
			r.Put("/{id}/status", handler.UpdateInvoiceStatus)
		})

		r.Route("/shipments", func(r chi.Router) {
			r.With(RateLimit(deps.Limiter)).Post("/", handler.SubmitShipment)
			r.Get("/", handler.ListShipments)
			r.Get("/{id}", handler.GetShipment)
			r.Put("/{id}/status", handler.UpdateShipmentStatus)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.With(RateLimit(deps.Limiter)).Post("/", handler.SubmitTransaction)
			r.Get("/", handler.ListTransactions)
			r.Get("/{id}", handler.GetTransaction)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Post("/", handler.RaiseAlert)
			r.Get("/", handler.ListAlerts)
			r.Get("/{id}", handler.GetAlert)
			r.Post("/{id}/resolve", handler.ResolveAlert)
		})

		r.Get("/reports/summary", handler.Summary)
	})

	return &Server{
		router:  router,
		handler: handler,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start listens until Shutdown; it then returns http.ErrServerClosed.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
