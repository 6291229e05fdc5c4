package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taskboard/taskboard/pkg/audit"
	"github.com/taskboard/taskboard/pkg/auth"
	"github.com/taskboard/taskboard/pkg/config"
	"github.com/taskboard/taskboard/pkg/documents"
	"github.com/taskboard/taskboard/pkg/httputil"
	"github.com/taskboard/taskboard/pkg/middleware"
	"github.com/taskboard/taskboard/pkg/notify"
	"github.com/taskboard/taskboard/pkg/observability"
	"github.com/taskboard/taskboard/pkg/projects"
	"github.com/taskboard/taskboard/pkg/rbac"
	"github.com/taskboard/taskboard/pkg/tasks"
	"github.com/taskboard/taskboard/pkg/users"
)

// permissionCacheTTL bounds how long a stale permission set can answer
// checks after a grant change on another instance
const permissionCacheTTL = 30 * time.Second

// Dependencies are the external resources the server is built on.
// Redis and Objects are optional; nil degrades the corresponding
// feature rather than failing startup. A nil Notifier is replaced with
// a dispatcher built from the notification config.
type Dependencies struct {
	DB       *sql.DB
	Redis    *redis.Client
	Objects  documents.ObjectStorage
	Notifier tasks.Notifier
	Registry *prometheus.Registry
}

// Server is the assembled HTTP API plus its health/metrics listener
type Server struct {
	cfg     *config.Config
	logger  *observability.Logger
	metrics *observability.Metrics
	handler http.Handler
	health  *observability.HealthChecker

	api    *http.Server
	probes *http.Server
}

// NewServer wires every feature onto one router
func NewServer(cfg *config.Config, deps Dependencies, logger *observability.Logger) (*Server, error) {
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics := observability.NewMetrics(registry)

	userStore := auth.NewStore(deps.DB)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	auditStore := audit.NewStore(deps.DB)

	rbacStore := rbac.NewStore(deps.DB)
	checker, err := rbac.NewPermissionChecker(rbacStore, permissionCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to build permission checker: %w", err)
	}
	guard := middleware.NewGuard(checker, logger)

	projectStore := projects.NewStore(deps.DB)
	taskStore := tasks.NewStore(deps.DB)
	documentStore := documents.NewStore(deps.DB)
	prefStore := notify.NewStore(deps.DB)
	settingsStore := users.NewSettingsStore(deps.DB)

	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NewDispatcherFromConfig(prefStore, cfg.Notify, nil, metrics)
	}

	workflow := tasks.NewWorkflow(taskStore, userStore, projectStore, notifier, cfg.Server.PublicURL, logger, metrics)
	processor := tasks.NewReminderProcessor(taskStore, userStore, auditStore, deps.Redis, notifier, logger, metrics)

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "route not found")
	})

	// Public routes: no session required
	NewAuthHandlers(userStore, tokens, auditStore, logger).RegisterRoutes(router)
	taskHandlers := tasks.NewHandlers(taskStore, workflow, processor, auditStore, logger, cfg.Frontend.BaseURL)
	taskHandlers.RegisterPublicRoutes(router)

	// Everything else sits behind the session token
	protected := router.NewRoute().Subrouter()
	protected.Use(middleware.AuthMiddleware(tokens))

	projects.NewHandlers(projectStore, auditStore, logger).RegisterRoutes(protected, guard)
	taskHandlers.RegisterRoutes(protected, guard)
	documents.NewHandlers(documentStore, deps.Objects, auditStore, logger, metrics, cfg.Storage.MaxUploadBytes).RegisterRoutes(protected, guard)
	notify.NewHandlers(prefStore, logger).RegisterRoutes(protected, guard)
	users.NewHandlers(userStore, settingsStore, auditStore, logger).RegisterRoutes(protected, guard)
	rbac.NewHandlers(rbacStore, checker, logger).RegisterRoutes(protected, guard)
	audit.NewHandlers(auditStore, logger).RegisterRoutes(protected, guard)
	NewDashboardHandlers(deps.DB, logger).RegisterRoutes(protected, guard)

	// The chain wraps the router itself so unmatched requests and CORS
	// preflights still pass through logging, recovery and metrics
	handler := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
		httputil.CORSMiddleware(cfg.Frontend.AllowedOrigins),
		metrics.HTTPMiddleware,
	)(router)

	health := observability.NewHealthChecker(deps.DB, deps.Redis)
	probeMux := http.NewServeMux()
	probeMux.HandleFunc("/healthz", health.Liveness)
	probeMux.HandleFunc("/readyz", health.Readiness)
	probeMux.Handle("/metrics", observability.Handler(registry))

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		handler: handler,
		health:  health,
		api: &http.Server{
			Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:      handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		probes: &http.Server{
			Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
			Handler: probeMux,
		},
	}
	return s, nil
}

// Handler exposes the fully wrapped API handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start runs both listeners. It blocks until the API listener stops.
func (s *Server) Start() error {
	go func() {
		s.logger.WithField("addr", s.probes.Addr).Info("health listener starting")
		if err := s.probes.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("health listener failed")
		}
	}()

	s.logger.WithField("addr", s.api.Addr).Info("API listener starting")
	if err := s.api.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API listener failed: %w", err)
	}
	return nil
}

// Shutdown drains both listeners
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.probes.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Warn("health listener shutdown failed")
	}
	return s.api.Shutdown(ctx)
}
