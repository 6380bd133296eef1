// Package workflow implements the delivery-confirmation flow: field
// validation, remote signature verification, an availability probe and
// the handoff to the async task queue.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/entregahub/entregahub/internal/catalog"
	"github.com/entregahub/entregahub/internal/dispatch"
	"github.com/entregahub/entregahub/internal/logging"
	"github.com/entregahub/entregahub/internal/metrics"
	"github.com/entregahub/entregahub/internal/store"
	"github.com/entregahub/entregahub/internal/tracing"
)

// ConfirmacionInfo is the complete confirmation payload a courier
// submits. Every field is required; the flow rejects partial payloads
// before any downstream call.
type ConfirmacionInfo struct {
	UsuarioID    int64  `json:"usuario_id"`
	Direccion    string `json:"direccion"`
	NombreRecibe string `json:"nombre_recibe"`
	FirmaRecibe  string `json:"firma_recibe"`
	FirmaPayload string `json:"firma_payload"`
	PedidoID     int64  `json:"pedido_id"`
	EntregaID    int64  `json:"entrega_id"`
}

// SignaturePayload is the subset of fields the authority signed, in the
// shape expected by its validation endpoint.
func (c ConfirmacionInfo) SignaturePayload() map[string]any {
	return map[string]any{
		"direccion":     c.Direccion,
		"nombre_recibe": c.NombreRecibe,
		"firma_recibe":  c.FirmaRecibe,
		"pedido_id":     c.PedidoID,
		"usuario_id":    c.UsuarioID,
		"entrega_id":    c.EntregaID,
	}
}

// ValidationError carries per-field messages for an incomplete payload.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return "confirmacion_info incompleto: " + strings.Join(names, ", ")
}

// ErrFirmaInvalida means the authority rejected the payload signature.
var ErrFirmaInvalida = errors.New("firma de confirmación inválida")

// Validate checks that every confirmation field is present.
func (c ConfirmacionInfo) Validate() error {
	fields := map[string]string{}
	if c.UsuarioID == 0 {
		fields["usuario_id"] = "campo requerido"
	}
	if c.Direccion == "" {
		fields["direccion"] = "campo requerido"
	}
	if c.NombreRecibe == "" {
		fields["nombre_recibe"] = "campo requerido"
	}
	if c.FirmaRecibe == "" {
		fields["firma_recibe"] = "campo requerido"
	}
	if c.FirmaPayload == "" {
		fields["firma_payload"] = "campo requerido"
	}
	if c.PedidoID == 0 {
		fields["pedido_id"] = "campo requerido"
	}
	if c.EntregaID == 0 {
		fields["entrega_id"] = "campo requerido"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// SignatureValidator verifies a confirmation signature with the remote
// authority.
type SignatureValidator interface {
	ValidateSignature(ctx context.Context, payload any, firma string) (bool, error)
}

// TaskDispatcher enqueues a catalog task.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, taskName string, args []any, opts map[string]any) dispatch.Result
}

// Outcome is the synchronous answer to a confirmation request. The
// estado reflects what the async task was told to do, not what it has
// done yet.
type Outcome struct {
	Estado  string          `json:"estado"`
	Mensaje string          `json:"mensaje"`
	Task    dispatch.Result `json:"task"`
}

// Confirmer runs the synchronous half of the confirmation flow.
type Confirmer struct {
	dispatcher TaskDispatcher
	authority  SignatureValidator
	check      AvailabilityCheck
	log        *logging.Logger
}

func NewConfirmer(d TaskDispatcher, a SignatureValidator, check AvailabilityCheck, log *logging.Logger) *Confirmer {
	if check == nil {
		check = AlwaysAvailable{}
	}
	if log == nil {
		log = logging.New("workflow")
	}
	return &Confirmer{dispatcher: d, authority: a, check: check, log: log}
}

// Confirm validates the payload and its signature, probes downstream
// availability and enqueues the processing task. A dispatched task is
// always reported back, whichever estado it carries.
func (c *Confirmer) Confirm(ctx context.Context, entregaID int64, retryCount int, info ConfirmacionInfo) (Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "workflow.confirm",
		attribute.Int64("entrega_id", entregaID),
		attribute.Int("retry_count", retryCount))
	defer span.End()

	if err := info.Validate(); err != nil {
		metrics.ConfirmacionesTotal.WithLabelValues("invalid_payload").Inc()
		return Outcome{}, err
	}

	valid, err := c.authority.ValidateSignature(ctx, info.SignaturePayload(), info.FirmaPayload)
	if err != nil {
		metrics.ConfirmacionesTotal.WithLabelValues("authority_error").Inc()
		tracing.SetSpanError(ctx, err)
		return Outcome{}, fmt.Errorf("validar firma: %w", err)
	}
	if !valid {
		metrics.SignatureFailuresTotal.WithLabelValues("authority").Inc()
		metrics.ConfirmacionesTotal.WithLabelValues("invalid_signature").Inc()
		c.log.WithContext(ctx).WithEntrega(entregaID).Warn("firma de confirmación rechazada")
		return Outcome{}, ErrFirmaInvalida
	}

	estado := store.EstadoEntregada
	mensaje := "entrega confirmada, procesamiento en curso"
	if !c.check.Available(ctx) {
		estado = store.EstadoPendienteConfirmacion
		mensaje = "sistema de confirmación no disponible, se reintentará"
	}

	res := c.dispatcher.Dispatch(ctx, catalog.TaskProcesarEntrega,
		[]any{entregaID, estado, retryCount, info}, nil)

	metrics.ConfirmacionesTotal.WithLabelValues(strings.ToLower(estado)).Inc()
	c.log.WithContext(ctx).WithEntrega(entregaID).WithTask(res.TaskID).
		WithField("estado", estado).Info("confirmación despachada")

	return Outcome{Estado: estado, Mensaje: mensaje, Task: res}, nil
}
