package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/entregahub/entregahub/internal/store"
	"github.com/entregahub/entregahub/internal/workflow"
)

type createEntregaRequest struct {
	Direccion string `json:"direccion" validate:"required,min=5"`
	PedidoID  int64  `json:"pedido_id" validate:"required,gt=0"`
}

func (s *Server) handleCreateEntrega(w http.ResponseWriter, r *http.Request) {
	var req createEntregaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeFieldErrors(w, validationFields(err))
		return
	}

	entrega, err := s.entregas.Create(r.Context(), req.Direccion, req.PedidoID, store.EstadoRegistrada)
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("crear entrega fallida")
		writeError(w, http.StatusInternalServerError, "no se pudo crear la entrega")
		return
	}
	writeJSON(w, http.StatusCreated, entrega)
}

func (s *Server) handleListEntregas(w http.ResponseWriter, r *http.Request) {
	entregas, err := s.entregas.List(r.Context())
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("listar entregas fallido")
		writeError(w, http.StatusInternalServerError, "no se pudieron listar las entregas")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entregas": entregas, "total": len(entregas)})
}

func (s *Server) handleGetEntrega(w http.ResponseWriter, r *http.Request) {
	id, ok := entregaID(w, r)
	if !ok {
		return
	}
	entrega, err := s.entregas.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrEntregaNotFound) {
			writeError(w, http.StatusNotFound, "entrega no encontrada")
			return
		}
		s.log.WithContext(r.Context()).WithEntrega(id).WithError(err).Error("cargar entrega fallido")
		writeError(w, http.StatusInternalServerError, "no se pudo cargar la entrega")
		return
	}
	writeJSON(w, http.StatusOK, entrega)
}

func (s *Server) handleConfirmar(w http.ResponseWriter, r *http.Request) {
	id, ok := entregaID(w, r)
	if !ok {
		return
	}

	var req struct {
		RetryCount       int                       `json:"_retry_count"`
		ConfirmacionInfo workflow.ConfirmacionInfo `json:"confirmacion_info"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	// The path is authoritative for which delivery is being confirmed.
	req.ConfirmacionInfo.EntregaID = id

	outcome, err := s.confirmer.Confirm(r.Context(), id, req.RetryCount, req.ConfirmacionInfo)
	if err != nil {
		s.respondConfirmError(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) respondConfirmError(w http.ResponseWriter, r *http.Request, id int64, err error) {
	var verr *workflow.ValidationError
	switch {
	case errors.As(err, &verr):
		writeFieldErrors(w, verr.Fields)
	case errors.Is(err, workflow.ErrFirmaInvalida):
		writeError(w, http.StatusForbidden, "firma de confirmación inválida")
	default:
		s.log.WithContext(r.Context()).WithEntrega(id).WithError(err).Error("confirmación fallida")
		writeError(w, http.StatusBadGateway, "autoridad de firmas no disponible")
	}
}

func entregaID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "id de entrega inválido")
		return 0, false
	}
	return id, true
}

func validationFields(err error) map[string]string {
	fields := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.Field()] = "no cumple la regla " + fe.Tag()
		}
		return fields
	}
	fields["_"] = err.Error()
	return fields
}
