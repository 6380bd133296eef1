// Package api is the HTTP surface of the logistics service: delivery
// CRUD, the confirmation entry point and the task endpoints backed by
// the dispatcher.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/entregahub/entregahub/internal/auth"
	"github.com/entregahub/entregahub/internal/dispatch"
	"github.com/entregahub/entregahub/internal/logging"
	"github.com/entregahub/entregahub/internal/store"
	"github.com/entregahub/entregahub/internal/workflow"
)

// Dispatcher is the task-dispatch surface the API consumes.
type Dispatcher interface {
	Dispatch(ctx context.Context, taskName string, args []any, opts map[string]any) dispatch.Result
	GetResult(ctx context.Context, taskID string) dispatch.ResultView
	GetStatus(ctx context.Context, taskID string) string
	ListAvailable() []string
	ListInFlight(ctx context.Context) dispatch.InFlightList
}

// Confirmer runs the synchronous confirmation flow.
type Confirmer interface {
	Confirm(ctx context.Context, entregaID int64, retryCount int, info workflow.ConfirmacionInfo) (workflow.Outcome, error)
}

// EntregaStore is the delivery persistence surface the API consumes.
type EntregaStore interface {
	Create(ctx context.Context, direccion string, pedidoID int64, estado string) (store.Entrega, error)
	Get(ctx context.Context, id int64) (store.Entrega, error)
	List(ctx context.Context) ([]store.Entrega, error)
}

// HealthChecker reports readiness of the backing services.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// Server wires the HTTP routes to their collaborators.
type Server struct {
	dispatcher Dispatcher
	confirmer  Confirmer
	entregas   EntregaStore
	tokens     *auth.Service
	apiKey     string
	health     HealthChecker
	registry   *prometheus.Registry
	validate   *validator.Validate
	log        *logging.Logger
}

func NewServer(d Dispatcher, c Confirmer, entregas EntregaStore, tokens *auth.Service, apiKey string, health HealthChecker, registry *prometheus.Registry, log *logging.Logger) *Server {
	if log == nil {
		log = logging.New("api")
	}
	return &Server{
		dispatcher: d,
		confirmer:  c,
		entregas:   entregas,
		tokens:     tokens,
		apiKey:     apiKey,
		health:     health,
		registry:   registry,
		validate:   validator.New(),
		log:        log,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/ping", s.handlePing)
	r.Get("/healthz", s.handleHealthz)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.tokens.RequireToken())
		r.Post("/entregas", s.handleCreateEntrega)
		r.Get("/entregas", s.handleListEntregas)
		r.Get("/entregas/{id}", s.handleGetEntrega)
		r.Post("/entrega/{id}/confirmar", s.handleConfirmar)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.tokens.RequireTokenOrAPIKey(s.apiKey))
		r.Post("/tareas", s.handleCreateTarea)
		r.Get("/tareas", s.handleListTareas)
		r.Get("/tarea/{taskID}", s.handleGetTarea)
		r.Get("/tarea/{taskID}/estado", s.handleGetTareaEstado)
	})

	return r
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Healthy(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
