// Package server provides the lishe HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/thebtf/lishe/internal/catalog"
	"github.com/thebtf/lishe/internal/config"
	gormdb "github.com/thebtf/lishe/internal/db/gorm"
	"github.com/thebtf/lishe/internal/metrics"
	"github.com/thebtf/lishe/internal/recommend"
	"github.com/thebtf/lishe/internal/reminder"
	"github.com/thebtf/lishe/internal/server/sse"
	"github.com/thebtf/lishe/pkg/models"
)

// UserStore is the account storage used by the API.
type UserStore interface {
	Register(ctx context.Context, email, name, password string) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
}

// RecordLister lists every stored recommendation for exports.
type RecordLister interface {
	ListAll(ctx context.Context) ([]*models.RecommendationRecord, error)
}

// Sweeper runs a reminder sweep on demand.
type Sweeper interface {
	RunSweep(ctx context.Context) (reminder.SweepResult, error)
}

// HealthChecker reports database health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) *gormdb.HealthInfo
}

// NotifierStatus describes the outgoing mail backend.
type NotifierStatus interface {
	Backend() string
	State() string
}

// Deps are the services behind the API. Reminders, DB and Notifier may be nil.
type Deps struct {
	Recommend *recommend.Service
	Users     UserStore
	Records   RecordLister
	Catalog   *catalog.Holder
	Reminders Sweeper
	DB        HealthChecker
	Notifier  NotifierStatus
	Events    *sse.Broadcaster
}

// Server is the HTTP API service.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps
	logger     zerolog.Logger
	adminToken string
	version    string
	config     config.ServerConfig
}

// New creates the server and registers all routes.
func New(cfg config.ServerConfig, adminToken, version string, deps Deps, logger zerolog.Logger) *Server {
	if deps.Events == nil {
		deps.Events = sse.NewBroadcaster()
	}
	s := &Server{
		router:     chi.NewRouter(),
		deps:       deps,
		config:     cfg,
		adminToken: adminToken,
		version:    version,
		logger:     logger.With().Str("component", "http").Logger(),
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	// Shutdown does not wait for open event streams
	s.httpServer.RegisterOnShutdown(s.deps.Events.CloseAll)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures the middleware shared by every route.
func (s *Server) setupMiddleware() {
	s.router.Use(RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(AccessLog)
	s.router.Use(middleware.Recoverer)
	s.router.Use(SecurityHeaders)
	s.router.Use(CORS(s.config.CORSOrigins))
}

// setupRoutes configures HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/version", s.handleVersion)
	s.router.Get("/api/ready", s.handleReady)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	// long-lived stream, kept out of the request timeout
	s.router.Get("/api/events", s.deps.Events.HandleSSE)

	s.router.Group(func(r chi.Router) {
		if s.config.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.config.RequestTimeout))
		}
		r.Use(RateLimit(s.config.RateLimitReqs, s.config.RateLimitWindow))
		r.Use(MaxBodySize(s.config.MaxBodyBytes))
		r.Use(RequireJSONContentType)

		r.Get("/api/goals", s.handleGoals)
		r.Get("/api/groups", s.handleGroups)
		r.Get("/api/activity-levels", s.handleActivityLevels)
		r.Post("/api/body-metrics", s.handleBodyMetrics)

		r.Post("/api/users/register", s.handleRegister)
		r.Post("/api/users/login", s.handleLogin)

		r.Route("/api/recommendations", func(r chi.Router) {
			r.Post("/", s.handleCreateRecommendation)
			r.Get("/", s.handleHistory)
			r.Get("/eligible", s.handleEligible)
			r.Post("/{id}/feedback", s.handleFeedback)
			r.Post("/{id}/email", s.handleEmailRecommendation)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(AdminToken(s.adminToken))
			r.Post("/reminders/sweep", s.handleSweep)
			r.Get("/export/{dataset}", s.handleExport)
			r.Post("/catalog/reload", s.handleCatalogReload)
		})
	})
}

// Serve runs the listener until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.serveListener(ctx, ln)
}

func (s *Server) serveListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		s.logger.Info().Msg("HTTP server stopped")
		return ctx.Err()
	}
}

func (s *Server) String() string { return "http-server" }
