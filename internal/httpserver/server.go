package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paycrypt/internal/metrics"
	"paycrypt/internal/purchase"
	"paycrypt/internal/repo"
	"paycrypt/internal/vtpass"
)

// Purchaser runs purchase submissions. *purchase.Engine satisfies it.
type Purchaser interface {
	SubmitPurchase(ctx context.Context, serviceType repo.ServiceType, payload json.RawMessage) (*purchase.Outcome, error)
}

// Catalog proxies VTpass lookups. *vtpass.Client satisfies it.
type Catalog interface {
	ListServices(ctx context.Context, identifier string) ([]vtpass.Service, error)
	ReloadServices(ctx context.Context, identifier string) ([]vtpass.Service, error)
	ListVariations(ctx context.Context, serviceID string) (*vtpass.ServiceVariations, error)
	VerifyCustomer(ctx context.Context, params vtpass.VerifyParams) (*vtpass.Customer, error)
}

// Dependencies exposes core dependencies to handlers.
type Dependencies struct {
	Purchases Purchaser
	Orders    repo.Store
	Catalog   Catalog
}

// Options shapes the HTTP surface.
type Options struct {
	BasePath       string
	AllowedOrigins []string
	// AdminJWTSecret protects the order listing and catalog reload when set.
	AdminJWTSecret string
	// ExposeErrorDetails adds internal error text to error bodies.
	ExposeErrorDetails bool
}

// Server wraps an http.Server with the gateway routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	deps       Dependencies
	opts       Options
	basePath   string
	now        func() time.Time
}

// New creates a new HTTP server listening on addr. metricRegistry may be nil.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, deps Dependencies, opts Options) *Server {
	server := &Server{
		logger:   logger.With("component", "http"),
		metrics:  metricRegistry,
		deps:     deps,
		opts:     opts,
		basePath: normaliseBasePath(opts.BasePath),
		now:      time.Now,
	}

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if server.basePath != "" {
		server.logger.Info("http server configured with base path", "base_path", server.basePath)
	}
	if opts.AdminJWTSecret == "" {
		server.logger.Warn("ADMIN_JWT_SECRET not set, admin routes are unauthenticated")
	}

	return server
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/airtime", s.handlePurchase(repo.ServiceAirtime))
		r.Post("/electricity", s.handlePurchase(repo.ServiceElectricity))
		r.Post("/internet", s.handlePurchase(repo.ServiceInternet))
		r.Post("/data", s.handlePurchase(repo.ServiceInternet))
		r.Post("/tv", s.handlePurchase(repo.ServiceTV))

		r.Route("/vtpass", func(r chi.Router) {
			r.Get("/services", s.handleServices)
			r.With(s.adminAuth).Post("/services/reload", s.handleReloadServices)
			r.Get("/service-variations", s.handleVariations)
			r.Post("/verify", s.handleVerify)
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(s.adminAuth).Get("/", s.handleListOrders)
			r.Get("/recent", s.handleRecentOrders)
			r.Get("/user/{userAddress}", s.handleUserOrders)
			r.Get("/{requestId}", s.handleGetOrder)
		})
	})

	if s.basePath == "" {
		return r
	}
	root := chi.NewRouter()
	root.Mount(s.basePath, r)
	return root
}

func (s *Server) allowedOrigins() []string {
	if len(s.opts.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.opts.AllowedOrigins
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "timestamp": s.now().UTC().Format(time.RFC3339)}
	if s.deps.Orders != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Orders.Ping(ctx); err != nil {
			s.logger.Error("health check: database ping failed", "error", err)
			body["status"] = "unhealthy"
			body["database"] = "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "connected"
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Warn("failed to encode json response", "error", err)
	}
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
