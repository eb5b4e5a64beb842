package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/todo-acl/pkg/auth"
	"github.com/platinummonkey/todo-acl/pkg/httputil"
	"github.com/platinummonkey/todo-acl/pkg/middleware"
	"github.com/platinummonkey/todo-acl/pkg/observability"
	"github.com/platinummonkey/todo-acl/pkg/storage"
)

// DefaultMaxBodyBytes bounds JSON request bodies
const DefaultMaxBodyBytes int64 = 1 << 20

// Deps are the collaborators of the API server
type Deps struct {
	Users    storage.UserStore
	Todos    storage.TodoStore
	Hasher   auth.PasswordHasher
	Resolver *auth.IdentityResolver
	Pipeline *middleware.Pipeline

	// Optional
	Audit        *auth.AuditLogger
	Logger       logrus.FieldLogger
	Metrics      *observability.Metrics
	Health       *observability.HealthChecker
	CORSOrigins  []string
	MaxBodyBytes int64
	Tracing      bool
}

func (d *Deps) validate() error {
	var errs []error
	if d.Users == nil {
		errs = append(errs, errors.New("user store is required"))
	}
	if d.Todos == nil {
		errs = append(errs, errors.New("todo store is required"))
	}
	if d.Hasher == nil {
		errs = append(errs, errors.New("password hasher is required"))
	}
	if d.Resolver == nil {
		errs = append(errs, errors.New("identity resolver is required"))
	}
	if d.Pipeline == nil {
		errs = append(errs, errors.New("request pipeline is required"))
	}
	return errors.Join(errs...)
}

// Server is the todo REST API
type Server struct {
	router  *mux.Router
	handler http.Handler
	logger  logrus.FieldLogger

	authHandlers *AuthHandlers
	todoHandlers *TodoHandlers
}

// NewServer wires routes and middleware over deps
func NewServer(deps Deps) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Audit == nil {
		deps.Audit = auth.NewAuditLogger(deps.Logger)
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		router:       mux.NewRouter(),
		logger:       deps.Logger,
		authHandlers: NewAuthHandlers(deps.Users, deps.Hasher, deps.Resolver, deps.Audit, deps.Metrics),
		todoHandlers: NewTodoHandlers(deps.Todos, deps.Metrics),
	}
	s.setupRoutes(deps)

	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(deps.Logger),
		httputil.RecoveryMiddleware(deps.Logger),
		httputil.CORSMiddleware(deps.CORSOrigins),
		httputil.MaxBytesMiddleware(deps.MaxBodyBytes),
	)
	s.handler = chain(s.router)
	if deps.Tracing {
		s.handler = otelhttp.NewHandler(s.handler, "todo-acl")
	}
	return s, nil
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(deps Deps) {
	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}

	s.authHandlers.RegisterRoutes(s.router, deps.Pipeline)
	s.todoHandlers.RegisterRoutes(s.router, deps.Pipeline)

	if deps.Health != nil {
		s.router.HandleFunc("/health", deps.Health.Readiness).Methods(http.MethodGet)
		s.router.HandleFunc("/health/live", deps.Health.Liveness).Methods(http.MethodGet)
		s.router.HandleFunc("/health/ready", deps.Health.Readiness).Methods(http.MethodGet)
	}
	if deps.Metrics != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(deps.Metrics.Registry())).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the route table
func (s *Server) Router() *mux.Router {
	return s.router
}
