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

	"github.com/faucetdb/backoffice/internal/config"
	"github.com/faucetdb/backoffice/internal/handler"
	"github.com/faucetdb/backoffice/internal/server/middleware"
	"github.com/faucetdb/backoffice/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host               string
	Port               int
	ShutdownTimeout    time.Duration
	CORSOrigins        []string
	RateLimitPerMinute int // 0 disables the API rate limit
	LoginLimitPerMin   int // 0 disables the login rate limit
	Version            string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ShutdownTimeout:    30 * time.Second,
		CORSOrigins:        []string{"*"},
		RateLimitPerMinute: 600,
		LoginLimitPerMin:   10,
		Version:            "dev",
	}
}

// Services bundles the application services the router dispatches to.
type Services struct {
	Auth     *service.AuthService
	Admins   *service.AdminService
	Settings *service.SettingsService
}

// Server is the top-level HTTP server for the backoffice. It owns the Chi
// router, the store, and the application services.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *config.Store
	svc        Services
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, store *config.Store, svc Services, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		svc:    svc,
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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI document (no auth required) ---
	r.Get("/openapi.json", handler.NewOpenAPIHandler(s.cfg.Version).ServeSpec)

	sessionHandler := handler.NewSessionHandler(s.svc.Auth)
	adminHandler := handler.NewAdminHandler(s.svc.Admins)
	settingsHandler := handler.NewSettingsHandler(s.svc.Settings)

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimitPerMinute > 0 {
			r.Use(middleware.RateLimit(s.cfg.RateLimitPerMinute))
		}

		// Login is unauthenticated and separately throttled.
		r.Group(func(r chi.Router) {
			if s.cfg.LoginLimitPerMin > 0 {
				r.Use(middleware.LoginRateLimit(s.cfg.LoginLimitPerMin))
			}
			r.Post("/session", sessionHandler.Login)
		})

		// Everything else requires a token that belongs to an administrator.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.svc.Auth))
			r.Use(middleware.RequireAdmin(s.svc.Admins))

			r.Delete("/session", sessionHandler.Logout)
			r.Get("/me", adminHandler.Me)
			r.Put("/me", adminHandler.UpdateMe)
			r.Put("/me/password", adminHandler.ChangePassword)

			r.Get("/roles", adminHandler.ListRoles)
			r.Get("/roles/assignable", adminHandler.AssignableRoles)

			r.Get("/admins", adminHandler.ListAdmins)
			r.Post("/admins", adminHandler.CreateAdmin)
			r.Get("/admins/stats", adminHandler.Stats)
			r.Get("/admins/{adminId}", adminHandler.GetAdmin)
			r.Put("/admins/{adminId}", adminHandler.UpdateAdmin)
			r.Delete("/admins/{adminId}", adminHandler.DeleteAdmin)

			r.Get("/settings", settingsHandler.ListSettings)
			r.Put("/settings", settingsHandler.UpdateSettings)
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

// handleReadyz is a readiness probe. Returns 200 when the store answers a
// ping within two seconds, 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := map[string]string{}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = "error: " + err.Error()
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"driver": s.store.Driver(),
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the store.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "driver", s.store.Driver())
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

	if err := s.store.Close(); err != nil {
		s.logger.Warn("failed to close store", "error", err)
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
