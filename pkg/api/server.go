package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/paddockdb/paddock/pkg/cms"
	"github.com/paddockdb/paddock/pkg/history"
	"github.com/paddockdb/paddock/pkg/log"
	"github.com/paddockdb/paddock/pkg/metrics"
	"github.com/paddockdb/paddock/pkg/types"
)

// Orchestrator is the slice of the durable-execution client the HTTP
// layer drives. *client.Client satisfies it.
type Orchestrator interface {
	StartOrchestration(instanceID, workflow string, input any) error
	RaiseEvent(instanceID, event string, payload any) error
	ListInstances() ([]string, error)
	GetInstanceInfo(instanceID string) (*history.InstanceInfo, error)
	ListExecutions(instanceID string) ([]uint64, error)
	ReadExecutionHistory(instanceID string, executionID uint64) ([]*history.Event, error)
}

// Catalog is the slice of the control-plane store the HTTP layer reads.
// *cms.Store satisfies it.
type Catalog interface {
	ListInstances(ctx context.Context) ([]types.Instance, error)
	FindInstance(ctx context.Context, name string) (*types.Instance, error)
	GetDNSOwner(ctx context.Context, dnsName string) (*cms.DNSOwner, error)
}

// Config carries the HTTP server settings.
type Config struct {
	// Addr is the listen address, host:port.
	Addr string
	// AuthToken guards /api routes when non-empty.
	AuthToken string
	// Namespace is the default Kubernetes namespace for new instances.
	Namespace string
	// LogPath is the server log file served by GET /api/server/logs.
	LogPath string
	// Version is reported by GET /health.
	Version string
}

// Server is the HTTP control plane: instance CRUD backed by the catalog
// and the orchestration runtime, plus orchestration diagnostics.
type Server struct {
	cfg      Config
	orch     Orchestrator
	catalog  Catalog
	validate *validator.Validate
	logger   zerolog.Logger
	http     *http.Server
}

// NewServer wires the API over an orchestration client and the catalog.
func NewServer(cfg Config, orch Orchestrator, catalog Catalog) *Server {
	if cfg.Namespace == "" {
		cfg.Namespace = types.DefaultNamespace
	}
	s := &Server{
		cfg:      cfg,
		orch:     orch,
		catalog:  catalog,
		validate: newValidator(),
		logger:   log.WithComponent("api"),
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

var instanceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

func newValidator() *validator.Validate {
	v := validator.New()
	// Error messages name the JSON field, not the Go field.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// instance_name restricts names to what survives as a DNS label.
	_ = v.RegisterValidation("instance_name", func(fl validator.FieldLevel) bool {
		return instanceNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// Handler builds the route tree. Exposed so tests and embedders can
// serve it without opening a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/ready", metrics.ReadyHandler())
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Route("/instances", func(r chi.Router) {
			r.Get("/", s.handleListInstances)
			r.Post("/", s.handleCreateInstance)
			r.Delete("/", s.handleBulkDeleteInstances)
			r.Post("/bulk", s.handleBulkCreateInstances)
			r.Get("/{name}", s.handleGetInstance)
			r.Delete("/{name}", s.handleDeleteInstance)
		})

		r.Route("/server", func(r chi.Router) {
			r.Get("/orchestrations", s.handleListOrchestrations)
			r.Get("/orchestrations/{id}", s.handleGetOrchestration)
			r.Post("/orchestrations/{id}/raise-event", s.handleRaiseEvent)
			r.Get("/logs", s.handleLogs)
		})
	})

	return r
}

// Start serves until the listener closes. A clean Shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("API server listening")
	metrics.SetComponent("api", true, "")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	metrics.SetComponent("api", false, "stopped")
	return s.http.Shutdown(ctx)
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Service:   "paddock",
		Version:   s.cfg.Version,
		Timestamp: time.Now().UTC(),
	})
}

// validationMessage renders the first field error as a human message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		switch fe.Kind() {
		case reflect.String:
			return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
		case reflect.Slice:
			return fmt.Sprintf("%s must contain at least %s items", fe.Field(), fe.Param())
		default:
			return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
		}
	case "max":
		switch fe.Kind() {
		case reflect.String:
			return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		case reflect.Slice:
			return fmt.Sprintf("%s must contain at most %s items", fe.Field(), fe.Param())
		default:
			return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
		}
	case "instance_name":
		return fmt.Sprintf("%s may only contain letters, digits, and hyphens", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
