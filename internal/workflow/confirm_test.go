package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/entregahub/entregahub/internal/catalog"
	"github.com/entregahub/entregahub/internal/dispatch"
	"github.com/entregahub/entregahub/internal/store"
)

type fakeDispatcher struct {
	calls []struct {
		task string
		args []any
	}
	result dispatch.Result
}

func (f *fakeDispatcher) Dispatch(_ context.Context, taskName string, args []any, _ map[string]any) dispatch.Result {
	f.calls = append(f.calls, struct {
		task string
		args []any
	}{taskName, args})
	if f.result.TaskName == "" {
		return dispatch.Result{TaskID: "task-1", TaskName: taskName, Status: dispatch.StatusPending}
	}
	return f.result
}

type fakeValidator struct {
	valid bool
	err   error

	gotPayload any
	gotFirma   string
}

func (f *fakeValidator) ValidateSignature(_ context.Context, payload any, firma string) (bool, error) {
	f.gotPayload = payload
	f.gotFirma = firma
	return f.valid, f.err
}

type fixedAvailability bool

func (a fixedAvailability) Available(context.Context) bool { return bool(a) }

func validInfo() ConfirmacionInfo {
	return ConfirmacionInfo{
		UsuarioID:    7,
		Direccion:    "Calle 10 #5-23",
		NombreRecibe: "Carlos Pérez",
		FirmaRecibe:  "data:image/png;base64,abc",
		FirmaPayload: "deadbeef",
		PedidoID:     33,
		EntregaID:    12,
	}
}

func TestConfirmMissingFieldsNeverDispatches(t *testing.T) {
	info := validInfo()
	info.FirmaRecibe = ""
	info.PedidoID = 0

	disp := &fakeDispatcher{}
	c := NewConfirmer(disp, &fakeValidator{valid: true}, AlwaysAvailable{}, nil)

	_, err := c.Confirm(context.Background(), 12, 0, info)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if _, ok := verr.Fields["firma_recibe"]; !ok {
		t.Error("missing firma_recibe in field errors")
	}
	if _, ok := verr.Fields["pedido_id"]; !ok {
		t.Error("missing pedido_id in field errors")
	}
	if len(disp.calls) != 0 {
		t.Fatalf("dispatched %d tasks on invalid payload, want 0", len(disp.calls))
	}
}

func TestConfirmInvalidSignatureNeverDispatches(t *testing.T) {
	disp := &fakeDispatcher{}
	val := &fakeValidator{valid: false}
	c := NewConfirmer(disp, val, AlwaysAvailable{}, nil)

	_, err := c.Confirm(context.Background(), 12, 0, validInfo())
	if !errors.Is(err, ErrFirmaInvalida) {
		t.Fatalf("expected ErrFirmaInvalida, got %v", err)
	}
	if len(disp.calls) != 0 {
		t.Fatalf("dispatched %d tasks on invalid signature, want 0", len(disp.calls))
	}
	if val.gotFirma != "deadbeef" {
		t.Errorf("authority got firma %q", val.gotFirma)
	}
	payload, ok := val.gotPayload.(map[string]any)
	if !ok {
		t.Fatalf("authority payload type %T", val.gotPayload)
	}
	if _, present := payload["firma_payload"]; present {
		t.Error("signature itself must not be part of the signed payload")
	}
	if payload["entrega_id"] != int64(12) {
		t.Errorf("payload entrega_id = %v", payload["entrega_id"])
	}
}

func TestConfirmAuthorityErrorSurfaces(t *testing.T) {
	disp := &fakeDispatcher{}
	c := NewConfirmer(disp, &fakeValidator{err: errors.New("connection refused")}, AlwaysAvailable{}, nil)

	_, err := c.Confirm(context.Background(), 12, 0, validInfo())
	if err == nil || errors.Is(err, ErrFirmaInvalida) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if len(disp.calls) != 0 {
		t.Fatal("must not dispatch when authority is unreachable")
	}
}

func TestConfirmAvailableDispatchesEntregada(t *testing.T) {
	disp := &fakeDispatcher{}
	c := NewConfirmer(disp, &fakeValidator{valid: true}, fixedAvailability(true), nil)

	out, err := c.Confirm(context.Background(), 12, 0, validInfo())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Estado != store.EstadoEntregada {
		t.Fatalf("estado = %q, want %q", out.Estado, store.EstadoEntregada)
	}
	if out.Task.TaskID == "" {
		t.Fatal("outcome must carry the dispatched task")
	}
	if len(disp.calls) != 1 {
		t.Fatalf("dispatched %d tasks, want 1", len(disp.calls))
	}
	call := disp.calls[0]
	if call.task != catalog.TaskProcesarEntrega {
		t.Fatalf("dispatched %q", call.task)
	}
	if len(call.args) != 4 {
		t.Fatalf("args len = %d, want 4", len(call.args))
	}
	if call.args[0] != int64(12) || call.args[1] != store.EstadoEntregada || call.args[2] != 0 {
		t.Errorf("args = %v", call.args[:3])
	}
	if _, ok := call.args[3].(ConfirmacionInfo); !ok {
		t.Errorf("args[3] type %T, want ConfirmacionInfo", call.args[3])
	}
}

func TestConfirmUnavailableDispatchesPending(t *testing.T) {
	disp := &fakeDispatcher{}
	c := NewConfirmer(disp, &fakeValidator{valid: true}, fixedAvailability(false), nil)

	out, err := c.Confirm(context.Background(), 12, 2, validInfo())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Estado != store.EstadoPendienteConfirmacion {
		t.Fatalf("estado = %q, want %q", out.Estado, store.EstadoPendienteConfirmacion)
	}
	if len(disp.calls) != 1 {
		t.Fatalf("dispatched %d tasks, want 1", len(disp.calls))
	}
	if disp.calls[0].args[1] != store.EstadoPendienteConfirmacion {
		t.Errorf("estado arg = %v", disp.calls[0].args[1])
	}
	if disp.calls[0].args[2] != 2 {
		t.Errorf("retry arg = %v, want 2", disp.calls[0].args[2])
	}
}

func TestSimulatedFlakyBounds(t *testing.T) {
	never := NewSimulatedFlaky(0)
	always := NewSimulatedFlaky(1)
	for i := 0; i < 50; i++ {
		if never.Available(context.Background()) {
			t.Fatal("p=0 reported available")
		}
		if !always.Available(context.Background()) {
			t.Fatal("p=1 reported unavailable")
		}
	}
}
