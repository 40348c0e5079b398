package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/michal-majer/s4kit/internal/config"
	"github.com/michal-majer/s4kit/internal/crypto"
	"github.com/michal-majer/s4kit/internal/handler"
	"github.com/michal-majer/s4kit/internal/openapi"
	"github.com/michal-majer/s4kit/internal/ratelimit"
	"github.com/michal-majer/s4kit/internal/sap"
	"github.com/michal-majer/s4kit/internal/securelog"
	"github.com/michal-majer/s4kit/internal/server/middleware"
	"github.com/michal-majer/s4kit/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	APIKeyHeader    string
	AdminRatePerMin int
	ExternalBaseURL string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		APIKeyHeader:    "X-API-Key",
		AdminRatePerMin: 120,
		ExternalBaseURL: "http://localhost:8080",
	}
}

// Deps bundles the components the server wires into routes. All of them are
// constructed at startup and shared across requests.
type Deps struct {
	Store    *config.Store
	Logs     *securelog.Store
	AuthSvc  *service.AuthService
	Perms    *service.PermissionService
	Limiter  ratelimit.Limiter
	Resolver *sap.Resolver
	Forward  *sap.Forwarder
	Enc      *crypto.Encryptor
}

// Server is the top-level HTTP server for S4Kit. It owns the Chi router and
// the proxy pipeline components.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", s.cfg.APIKeyHeader, "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI combined spec (no auth required) ---
	r.Get("/openapi.json", s.handleOpenAPI)

	// --- Proxy routes: the request-mediation pipeline ---
	proxy := handler.NewProxy(s.deps.Store, s.deps.Perms, s.deps.Limiter,
		s.deps.Resolver, s.deps.Forward, s.logger)
	r.Route("/odata/{service}", func(r chi.Router) {
		r.Use(handler.Auditor(s.deps.Logs, s.logger))
		r.Use(middleware.APIKeyAuth(s.deps.AuthSvc, s.cfg.APIKeyHeader))
		r.HandleFunc("/*", proxy.Handle)
	})

	// --- System APIs (admin management) ---
	r.Route("/api/v1/system", func(r chi.Router) {
		r.Use(middleware.IPRateLimit(s.cfg.AdminRatePerMin))

		sysHandler := handler.NewSystemHandler(s.deps.Store, s.deps.AuthSvc, s.deps.Enc)
		analytics := handler.NewAnalyticsHandler(s.deps.Logs)

		// Session endpoints are unauthenticated (login) or self-authenticated (logout)
		r.Post("/admin/session", sysHandler.Login)
		r.Delete("/admin/session", sysHandler.Logout)

		// All other system endpoints require admin authentication
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(s.deps.AuthSvc))

			// Systems
			r.Get("/systems", sysHandler.ListSystems)
			r.Post("/systems", sysHandler.CreateSystem)
			r.Get("/systems/{id}", sysHandler.GetSystem)
			r.Put("/systems/{id}", sysHandler.UpdateSystem)
			r.Delete("/systems/{id}", sysHandler.DeleteSystem)

			// Instances
			r.Get("/systems/{id}/instances", sysHandler.ListInstances)
			r.Post("/systems/{id}/instances", sysHandler.CreateInstance)
			r.Put("/instances/{id}", sysHandler.UpdateInstance)
			r.Delete("/instances/{id}", sysHandler.DeleteInstance)

			// System services
			r.Get("/systems/{id}/services", sysHandler.ListSystemServices)
			r.Post("/systems/{id}/services", sysHandler.CreateSystemService)
			r.Delete("/services/{id}", sysHandler.DeleteSystemService)

			// Instance services
			r.Get("/instances/{id}/services", sysHandler.ListInstanceServices)
			r.Post("/instances/{id}/services", sysHandler.CreateInstanceService)
			r.Put("/instance-services/{id}", sysHandler.UpdateInstanceService)
			r.Delete("/instance-services/{id}", sysHandler.DeleteInstanceService)

			// API keys and grants
			r.Get("/keys", sysHandler.ListAPIKeys)
			r.Post("/keys", sysHandler.CreateAPIKey)
			r.Delete("/keys/{id}", sysHandler.RevokeAPIKey)
			r.Get("/keys/{id}/grants", sysHandler.ListGrants)
			r.Put("/keys/{id}/grants", sysHandler.SetGrant)
			r.Delete("/grants/{id}", sysHandler.DeleteGrant)

			// Request log and analytics
			r.Get("/logs", analytics.ListLogs)
			r.Get("/logs/stats", analytics.GetStats)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the config store and
// the secure log are reachable, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if _, err := s.deps.Store.HasAnyAdmin(r.Context()); err != nil {
		checks["config_store"] = "error: " + err.Error()
		status = "degraded"
	} else {
		checks["config_store"] = "ok"
	}
	if _, err := s.deps.Logs.Query(r.Context(), securelog.Filter{Limit: 1}); err != nil {
		checks["secure_log"] = "error: " + err.Error()
		status = "degraded"
	} else {
		checks["secure_log"] = "ok"
	}

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// handleOpenAPI serves the combined spec describing every active routable
// service.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	specs, err := s.collectServiceSpecs(r.Context())
	if err != nil {
		s.logger.Error("openapi generation failed", "error", err)
		http.Error(w, `{"error":{"code":"INTERNAL_ERROR","message":"spec generation failed"}}`,
			http.StatusInternalServerError)
		return
	}
	doc := openapi.Generate(specs, s.cfg.ExternalBaseURL)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (s *Server) collectServiceSpecs(ctx context.Context) ([]openapi.ServiceSpec, error) {
	var specs []openapi.ServiceSpec
	systems, err := s.deps.Store.ListSystems(ctx)
	if err != nil {
		return nil, err
	}
	for _, sys := range systems {
		instances, err := s.deps.Store.ListInstances(ctx, sys.ID)
		if err != nil {
			return nil, err
		}
		for _, inst := range instances {
			if !inst.IsActive {
				continue
			}
			bindings, err := s.deps.Store.ListInstanceServices(ctx, inst.ID)
			if err != nil {
				return nil, err
			}
			for _, is := range bindings {
				if !is.IsActive {
					continue
				}
				ss, err := s.deps.Store.GetSystemService(ctx, is.SystemServiceID)
				if err != nil {
					continue
				}
				specs = append(specs, openapi.ServiceSpec{
					Slug:         is.Slug,
					Name:         ss.Name,
					ODataVersion: ss.ODataVersion,
					Entities:     is.EffectiveEntities(ss),
				})
			}
		}
	}
	return specs, nil
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
