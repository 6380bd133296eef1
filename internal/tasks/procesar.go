package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/entregahub/entregahub/internal/logging"
	"github.com/entregahub/entregahub/internal/reconcile"
	"github.com/entregahub/entregahub/internal/secrets"
	"github.com/entregahub/entregahub/internal/store"
	"github.com/entregahub/entregahub/internal/workflow"
)

// EntregaStore is the slice of the delivery store the processing task
// needs, narrow enough to fake in tests.
type EntregaStore interface {
	Get(ctx context.Context, id int64) (store.Entrega, error)
	SetEstado(ctx context.Context, id int64, estado string) error
	Confirm(ctx context.Context, id int64, c store.ConfirmacionEntrega) error
}

// Retrier resubmits a delivery whose downstream confirmation is pending.
type Retrier interface {
	Run(ctx context.Context, entregaID int64, currentRetry int, info workflow.ConfirmacionInfo) reconcile.Result
}

// Shipping details attached to every completed delivery. Pricing and ETA
// come from a downstream quote service that is out of scope here.
var detallesEntrega = map[string]any{
	"validado":        true,
	"costo_calculado": 150.00,
	"tiempo_estimado": "2-3 días hábiles",
}

// ProcesarEntrega holds the dependencies of the delivery-processing task.
type ProcesarEntrega struct {
	entregas EntregaStore
	codec    *secrets.Codec
	retrier  Retrier
	log      *logging.Logger
	now      func() time.Time
}

func NewProcesarEntrega(entregas EntregaStore, codec *secrets.Codec, retrier Retrier, log *logging.Logger) *ProcesarEntrega {
	if log == nil {
		log = logging.New("procesar_entrega")
	}
	return &ProcesarEntrega{entregas: entregas, codec: codec, retrier: retrier, log: log, now: time.Now}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

func asInt(v any) (int, bool) {
	n, ok := asInt64(v)
	return int(n), ok
}

// decodeInfo converts the wire form of confirmacion_info (a generic JSON
// object after transit) back into its typed form.
func decodeInfo(v any) (workflow.ConfirmacionInfo, error) {
	var info workflow.ConfirmacionInfo
	if typed, ok := v.(workflow.ConfirmacionInfo); ok {
		return typed, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return info, fmt.Errorf("confirmacion_info ilegible: %w", err)
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return info, fmt.Errorf("confirmacion_info ilegible: %w", err)
	}
	return info, nil
}

func errorPayload(entregaID int64, msg string) map[string]any {
	return map[string]any{"entrega_id": entregaID, "error": msg}
}

// Handle processes one delivery according to the estado the dispatcher
// decided at confirmation time. Malformed invocations produce an error
// payload and never touch the stored delivery.
func (p *ProcesarEntrega) Handle(ctx context.Context, args []any, _ map[string]any) (any, error) {
	if len(args) != 4 {
		return nil, fmt.Errorf("procesar_entrega espera 4 argumentos, recibió %d", len(args))
	}
	entregaID, ok := asInt64(args[0])
	if !ok {
		return nil, fmt.Errorf("entrega_id inválido: %v", args[0])
	}
	estado, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("status inválido: %v", args[1])
	}
	retryCount, ok := asInt(args[2])
	if !ok {
		return nil, fmt.Errorf("_retry_count inválido: %v", args[2])
	}

	log := p.log.WithContext(ctx).WithEntrega(entregaID).WithField("estado", estado)

	if _, err := p.entregas.Get(ctx, entregaID); err != nil {
		if errors.Is(err, store.ErrEntregaNotFound) {
			log.Warn("entrega no encontrada")
			return errorPayload(entregaID, "entrega no encontrada"), nil
		}
		return nil, fmt.Errorf("cargar entrega %d: %w", entregaID, err)
	}

	info, err := decodeInfo(args[3])
	if err != nil {
		log.WithError(err).Warn("confirmacion_info ilegible")
		return errorPayload(entregaID, err.Error()), nil
	}
	if err := info.Validate(); err != nil {
		log.WithError(err).Warn("confirmacion_info incompleto")
		return errorPayload(entregaID, err.Error()), nil
	}

	switch estado {
	case store.EstadoPendienteConfirmacion:
		return p.handlePending(ctx, entregaID, retryCount, info, log)
	case store.EstadoEntregada:
		return p.handleEntregada(ctx, entregaID, info, log)
	default:
		log.Warn("estado no soportado")
		return errorPayload(entregaID, fmt.Sprintf("estado no soportado: %s", estado)), nil
	}
}

func (p *ProcesarEntrega) handlePending(ctx context.Context, entregaID int64, retryCount int, info workflow.ConfirmacionInfo, log *logging.LogEntry) (any, error) {
	if err := p.entregas.SetEstado(ctx, entregaID, store.EstadoPendienteConfirmacion); err != nil {
		return nil, fmt.Errorf("marcar entrega %d pendiente: %w", entregaID, err)
	}

	res := p.retrier.Run(ctx, entregaID, retryCount, info)
	if res.Estado == store.EstadoFailedMaxRetries {
		if err := p.entregas.SetEstado(ctx, entregaID, store.EstadoFailedMaxRetries); err != nil {
			return nil, fmt.Errorf("marcar entrega %d agotada: %w", entregaID, err)
		}
		log.WithField("attempts", res.Attempts).Warn("reintentos agotados")
	} else {
		log.WithTask(res.TaskID).Info("reintento programado")
	}

	return map[string]any{
		"entrega_id": entregaID,
		"estado":     store.EstadoPendienteConfirmacion,
		"retry_info": res,
	}, nil
}

func (p *ProcesarEntrega) handleEntregada(ctx context.Context, entregaID int64, info workflow.ConfirmacionInfo, log *logging.LogEntry) (any, error) {
	direccion, err := p.codec.Encrypt(info.Direccion)
	if err != nil {
		return nil, fmt.Errorf("cifrar direccion: %w", err)
	}
	nombre, err := p.codec.Encrypt(info.NombreRecibe)
	if err != nil {
		return nil, fmt.Errorf("cifrar nombre_recibe: %w", err)
	}
	firma, err := p.codec.Encrypt(info.FirmaRecibe)
	if err != nil {
		return nil, fmt.Errorf("cifrar firma_recibe: %w", err)
	}

	conf := store.ConfirmacionEntrega{
		Direccion:       direccion,
		NombreRecibe:    nombre,
		FirmaRecibe:     firma,
		IntegridadFirma: info.FirmaPayload,
		FechaEntrega:    p.now().UTC(),
	}
	if err := p.entregas.Confirm(ctx, entregaID, conf); err != nil {
		return nil, fmt.Errorf("confirmar entrega %d: %w", entregaID, err)
	}

	log.Info("entrega confirmada")
	return map[string]any{
		"entrega_id": entregaID,
		"estado":     store.EstadoEntregada,
		"detalles":   detallesEntrega,
	}, nil
}
