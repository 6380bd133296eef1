package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/entregahub/entregahub/internal/catalog"
	"github.com/entregahub/entregahub/internal/workflow"
)

type createTareaRequest struct {
	Tipo             string                    `json:"tipo"`
	EntregaID        int64                     `json:"entrega_id,omitempty"`
	RetryCount       int                       `json:"_retry_count,omitempty"`
	ConfirmacionInfo workflow.ConfirmacionInfo `json:"confirmacion_info,omitempty"`
	ProductoID       int64                     `json:"producto_id,omitempty"`
	Cantidad         int                       `json:"cantidad,omitempty"`
	FechaInicio      string                    `json:"fecha_inicio,omitempty"`
	FechaFin         string                    `json:"fecha_fin,omitempty"`
	ActivityData     map[string]any            `json:"activity_data,omitempty"`
}

// handleCreateTarea maps a task request onto the matching dispatch. The
// procesar_entrega tipo goes through the full confirmation flow so each
// resubmission re-checks the signature and downstream availability.
func (s *Server) handleCreateTarea(w http.ResponseWriter, r *http.Request) {
	var req createTareaRequest
	if !decodeBody(w, r, &req) {
		return
	}

	switch req.Tipo {
	case "procesar_entrega":
		if req.EntregaID <= 0 {
			writeError(w, http.StatusBadRequest, "entrega_id requerido")
			return
		}
		req.ConfirmacionInfo.EntregaID = req.EntregaID
		outcome, err := s.confirmer.Confirm(r.Context(), req.EntregaID, req.RetryCount, req.ConfirmacionInfo)
		if err != nil {
			s.respondConfirmError(w, r, req.EntregaID, err)
			return
		}
		writeJSON(w, http.StatusOK, outcome)

	case "validar_inventario":
		if req.ProductoID <= 0 || req.Cantidad <= 0 {
			writeError(w, http.StatusBadRequest, "producto_id y cantidad requeridos")
			return
		}
		res := s.dispatcher.Dispatch(r.Context(), catalog.TaskValidarInventario,
			[]any{req.ProductoID, req.Cantidad}, nil)
		writeJSON(w, http.StatusOK, map[string]any{"task": res})

	case "generar_reporte":
		if req.FechaInicio == "" || req.FechaFin == "" {
			writeError(w, http.StatusBadRequest, "fecha_inicio y fecha_fin requeridas")
			return
		}
		res := s.dispatcher.Dispatch(r.Context(), catalog.TaskGenerarReporte,
			[]any{req.FechaInicio, req.FechaFin}, nil)
		writeJSON(w, http.StatusOK, map[string]any{"task": res})

	case "health_check":
		res := s.dispatcher.Dispatch(r.Context(), catalog.TaskHealthCheck, nil, nil)
		writeJSON(w, http.StatusOK, map[string]any{"task": res})

	case "log_activity":
		res := s.dispatcher.Dispatch(r.Context(), catalog.TaskLogActivity,
			[]any{req.ActivityData}, nil)
		writeJSON(w, http.StatusOK, map[string]any{"task": res})

	case "generate_metrics":
		res := s.dispatcher.Dispatch(r.Context(), catalog.TaskGenerateMetrics, nil, nil)
		writeJSON(w, http.StatusOK, map[string]any{"task": res})

	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":       "tipo de tarea no soportado: " + req.Tipo,
			"disponibles": s.dispatcher.ListAvailable(),
		})
	}
}

func (s *Server) handleListTareas(w http.ResponseWriter, r *http.Request) {
	list := s.dispatcher.ListInFlight(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"tareas":      list.Tasks,
		"omitidas":    list.Skipped,
		"disponibles": s.dispatcher.ListAvailable(),
	})
}

func (s *Server) handleGetTarea(w http.ResponseWriter, r *http.Request) {
	view := s.dispatcher.GetResult(r.Context(), chi.URLParam(r, "taskID"))
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetTareaEstado(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	writeJSON(w, http.StatusOK, map[string]string{
		"task_id": taskID,
		"estado":  s.dispatcher.GetStatus(r.Context(), taskID),
	})
}
