// Package store owns the relational records: deliveries for the logistics
// service and users for the authorization service. Delivery mutations are
// single atomic statements; the completed transition is a conditional
// update so concurrent confirmations of one id converge on one write.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Delivery lifecycle states. PENDING_SYSTEM_CONFIRMATION is transient and
// must always resolve through the reconciliation loop; the other two
// non-initial states are terminal.
const (
	EstadoRegistrada            = "registered"
	EstadoPendienteConfirmacion = "PENDING_SYSTEM_CONFIRMATION"
	EstadoEntregada             = "ENTREGADA"
	EstadoFailedMaxRetries      = "FAILED_MAX_RETRIES"
)

// ErrEntregaNotFound reports a delivery id with no record.
var ErrEntregaNotFound = errors.New("store: entrega no encontrada")

// Entrega is a delivery record. Direccion, NombreRecibe and FirmaRecibe
// are stored encrypted; IntegridadFirma keeps the raw signed payload
// string for later audit and must not be encrypted.
type Entrega struct {
	ID              int64      `json:"id"`
	Direccion       string     `json:"direccion,omitempty"`
	PedidoID        int64      `json:"pedido_id"`
	Estado          string     `json:"estado"`
	NombreRecibe    string     `json:"nombre_recibe,omitempty"`
	FirmaRecibe     string     `json:"firma_recibe,omitempty"`
	IntegridadFirma string     `json:"integridad_firma,omitempty"`
	FechaEntrega    *time.Time `json:"fecha_entrega,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ConfirmacionEntrega carries the encrypted field values persisted when a
// delivery is completed.
type ConfirmacionEntrega struct {
	Direccion       string // encrypted, empty keeps the stored value
	NombreRecibe    string // encrypted
	FirmaRecibe     string // encrypted
	IntegridadFirma string // raw signed payload
	FechaEntrega    time.Time
}

// Entregas is the pgx-backed delivery store.
type Entregas struct {
	pool *pgxpool.Pool
}

// NewEntregas wraps a connection pool.
func NewEntregas(pool *pgxpool.Pool) *Entregas {
	return &Entregas{pool: pool}
}

// Create inserts a new delivery in its initial state.
func (s *Entregas) Create(ctx context.Context, direccion string, pedidoID int64, estado string) (Entrega, error) {
	if estado == "" {
		estado = EstadoRegistrada
	}
	var e Entrega
	err := s.pool.QueryRow(ctx, `
		INSERT INTO entregas(direccion, pedido_id, estado)
		VALUES ($1, $2, $3)
		RETURNING id, direccion, pedido_id, estado, created_at`,
		direccion, pedidoID, estado,
	).Scan(&e.ID, &e.Direccion, &e.PedidoID, &e.Estado, &e.CreatedAt)
	if err != nil {
		return Entrega{}, fmt.Errorf("insert entrega: %w", err)
	}
	return e, nil
}

// Get loads one delivery by id.
func (s *Entregas) Get(ctx context.Context, id int64) (Entrega, error) {
	var e Entrega
	err := s.pool.QueryRow(ctx, `
		SELECT id, direccion, pedido_id, estado,
		       COALESCE(nombre_recibe, ''), COALESCE(firma_recibe, ''),
		       COALESCE(integridad_firma, ''), fecha_entrega, created_at
		FROM entregas WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Direccion, &e.PedidoID, &e.Estado,
		&e.NombreRecibe, &e.FirmaRecibe, &e.IntegridadFirma, &e.FechaEntrega, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entrega{}, ErrEntregaNotFound
	}
	if err != nil {
		return Entrega{}, fmt.Errorf("select entrega: %w", err)
	}
	return e, nil
}

// List returns every delivery, newest first.
func (s *Entregas) List(ctx context.Context) ([]Entrega, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, direccion, pedido_id, estado,
		       COALESCE(nombre_recibe, ''), COALESCE(firma_recibe, ''),
		       COALESCE(integridad_firma, ''), fecha_entrega, created_at
		FROM entregas ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list entregas: %w", err)
	}
	defer rows.Close()

	var out []Entrega
	for rows.Next() {
		var e Entrega
		if err := rows.Scan(&e.ID, &e.Direccion, &e.PedidoID, &e.Estado,
			&e.NombreRecibe, &e.FirmaRecibe, &e.IntegridadFirma, &e.FechaEntrega, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entrega: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SetEstado updates only the lifecycle state.
func (s *Entregas) SetEstado(ctx context.Context, id int64, estado string) error {
	ct, err := s.pool.Exec(ctx, `UPDATE entregas SET estado = $2 WHERE id = $1`, id, estado)
	if err != nil {
		return fmt.Errorf("update estado: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrEntregaNotFound
	}
	return nil
}

// Confirm persists a completed delivery: encrypted recipient fields (only
// the non-empty ones), the raw signature payload and the delivery time.
// The update only fires while the delivery is not yet ENTREGADA, so two
// concurrent confirmations of the same id produce exactly one write and
// the loser resolves as an idempotent no-op.
func (s *Entregas) Confirm(ctx context.Context, id int64, c ConfirmacionEntrega) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE entregas SET
			estado = $2,
			direccion = COALESCE(NULLIF($3, ''), direccion),
			nombre_recibe = COALESCE(NULLIF($4, ''), nombre_recibe),
			firma_recibe = COALESCE(NULLIF($5, ''), firma_recibe),
			integridad_firma = $6,
			fecha_entrega = $7
		WHERE id = $1 AND estado <> $2`,
		id, EstadoEntregada, c.Direccion, c.NombreRecibe, c.FirmaRecibe, c.IntegridadFirma, c.FechaEntrega,
	)
	if err != nil {
		return fmt.Errorf("confirm entrega: %w", err)
	}
	if ct.RowsAffected() == 0 {
		e, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if e.Estado == EstadoEntregada {
			return nil
		}
		return ErrEntregaNotFound
	}
	return nil
}
