package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/entregahub/entregahub/internal/reconcile"
	"github.com/entregahub/entregahub/internal/secrets"
	"github.com/entregahub/entregahub/internal/store"
	"github.com/entregahub/entregahub/internal/workflow"
)

type fakeEntregas struct {
	entregas map[int64]store.Entrega

	estados  []string
	confirms []store.ConfirmacionEntrega
}

func newFakeEntregas(ids ...int64) *fakeEntregas {
	f := &fakeEntregas{entregas: map[int64]store.Entrega{}}
	for _, id := range ids {
		f.entregas[id] = store.Entrega{ID: id, Estado: store.EstadoRegistrada}
	}
	return f
}

func (f *fakeEntregas) Get(_ context.Context, id int64) (store.Entrega, error) {
	e, ok := f.entregas[id]
	if !ok {
		return store.Entrega{}, store.ErrEntregaNotFound
	}
	return e, nil
}

func (f *fakeEntregas) SetEstado(_ context.Context, id int64, estado string) error {
	f.estados = append(f.estados, estado)
	e := f.entregas[id]
	e.Estado = estado
	f.entregas[id] = e
	return nil
}

func (f *fakeEntregas) Confirm(_ context.Context, id int64, c store.ConfirmacionEntrega) error {
	f.confirms = append(f.confirms, c)
	e := f.entregas[id]
	e.Estado = store.EstadoEntregada
	f.entregas[id] = e
	return nil
}

func (f *fakeEntregas) mutated() bool {
	return len(f.estados) > 0 || len(f.confirms) > 0
}

type fakeRetrier struct {
	result reconcile.Result
	calls  int
}

func (f *fakeRetrier) Run(_ context.Context, _ int64, _ int, _ workflow.ConfirmacionInfo) reconcile.Result {
	f.calls++
	return f.result
}

func infoArgs() map[string]any {
	// Shape after a JSON round trip through the broker.
	return map[string]any{
		"usuario_id":    float64(7),
		"direccion":     "Calle 10 #5-23",
		"nombre_recibe": "Carlos Pérez",
		"firma_recibe":  "data:image/png;base64,abc",
		"firma_payload": "deadbeef",
		"pedido_id":     float64(33),
		"entrega_id":    float64(12),
	}
}

func newProcesar(entregas *fakeEntregas, retrier *fakeRetrier) *ProcesarEntrega {
	return NewProcesarEntrega(entregas, secrets.NewCodec("clave-de-cifrado"), retrier, nil)
}

func TestHandleMissingDeliveryNeverMutates(t *testing.T) {
	entregas := newFakeEntregas()
	p := newProcesar(entregas, &fakeRetrier{})

	out, err := p.Handle(context.Background(), []any{float64(99), store.EstadoEntregada, float64(0), infoArgs()}, nil)
	if err != nil {
		t.Fatalf("missing delivery must yield an error payload, got error %v", err)
	}
	payload := out.(map[string]any)
	if payload["error"] == nil {
		t.Fatal("expected error field in payload")
	}
	if entregas.mutated() {
		t.Fatal("store mutated for unknown delivery")
	}
}

func TestHandleIncompleteInfoNeverMutates(t *testing.T) {
	entregas := newFakeEntregas(12)
	p := newProcesar(entregas, &fakeRetrier{})

	info := infoArgs()
	delete(info, "firma_recibe")
	out, err := p.Handle(context.Background(), []any{float64(12), store.EstadoEntregada, float64(0), info}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(map[string]any)["error"] == nil {
		t.Fatal("expected error field in payload")
	}
	if entregas.mutated() {
		t.Fatal("store mutated for incomplete confirmacion_info")
	}
}

func TestHandleEntregadaEncryptsAndConfirms(t *testing.T) {
	entregas := newFakeEntregas(12)
	p := newProcesar(entregas, &fakeRetrier{})

	out, err := p.Handle(context.Background(), []any{float64(12), store.EstadoEntregada, float64(0), infoArgs()}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entregas.confirms) != 1 {
		t.Fatalf("confirms = %d, want 1", len(entregas.confirms))
	}
	conf := entregas.confirms[0]
	if conf.Direccion == "Calle 10 #5-23" {
		t.Error("direccion stored in clear")
	}
	if conf.NombreRecibe == "Carlos Pérez" {
		t.Error("nombre_recibe stored in clear")
	}
	if conf.FirmaRecibe == "data:image/png;base64,abc" {
		t.Error("firma_recibe stored in clear")
	}
	if conf.IntegridadFirma != "deadbeef" {
		t.Errorf("integridad_firma = %q, want raw signature", conf.IntegridadFirma)
	}
	if conf.FechaEntrega.IsZero() {
		t.Error("fecha_entrega not stamped")
	}

	// Ciphertexts must decrypt back to the submitted values.
	codec := secrets.NewCodec("clave-de-cifrado")
	got, err := codec.Decrypt(conf.NombreRecibe)
	if err != nil || got != "Carlos Pérez" {
		t.Errorf("decrypt nombre_recibe = %q, %v", got, err)
	}

	payload := out.(map[string]any)
	if payload["estado"] != store.EstadoEntregada {
		t.Errorf("estado = %v", payload["estado"])
	}
	detalles := payload["detalles"].(map[string]any)
	if detalles["validado"] != true || detalles["costo_calculado"] != 150.00 {
		t.Errorf("detalles = %v", detalles)
	}
}

func TestHandlePendingRunsRetrier(t *testing.T) {
	entregas := newFakeEntregas(12)
	retrier := &fakeRetrier{result: reconcile.Result{Estado: reconcile.StatusRetrySubmitted, TaskID: "task-7", Attempts: 1}}
	p := newProcesar(entregas, retrier)

	out, err := p.Handle(context.Background(), []any{float64(12), store.EstadoPendienteConfirmacion, float64(1), infoArgs()}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retrier.calls != 1 {
		t.Fatalf("retrier calls = %d, want 1", retrier.calls)
	}
	if len(entregas.estados) != 1 || entregas.estados[0] != store.EstadoPendienteConfirmacion {
		t.Fatalf("estados = %v", entregas.estados)
	}
	payload := out.(map[string]any)
	ri := payload["retry_info"].(reconcile.Result)
	if ri.TaskID != "task-7" {
		t.Errorf("retry_info = %+v", ri)
	}
}

func TestHandlePendingExhaustedMarksFailed(t *testing.T) {
	entregas := newFakeEntregas(12)
	retrier := &fakeRetrier{result: reconcile.Result{Estado: store.EstadoFailedMaxRetries, Attempts: 3}}
	p := newProcesar(entregas, retrier)

	_, err := p.Handle(context.Background(), []any{float64(12), store.EstadoPendienteConfirmacion, float64(3), infoArgs()}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{store.EstadoPendienteConfirmacion, store.EstadoFailedMaxRetries}
	if len(entregas.estados) != 2 || entregas.estados[0] != want[0] || entregas.estados[1] != want[1] {
		t.Fatalf("estados = %v, want %v", entregas.estados, want)
	}
	if entregas.entregas[12].Estado != store.EstadoFailedMaxRetries {
		t.Fatalf("final estado = %q", entregas.entregas[12].Estado)
	}
}

func TestHandleUnsupportedEstado(t *testing.T) {
	entregas := newFakeEntregas(12)
	p := newProcesar(entregas, &fakeRetrier{})

	out, err := p.Handle(context.Background(), []any{float64(12), "EN_CAMINO", float64(0), infoArgs()}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(map[string]any)["error"] == nil {
		t.Fatal("expected error payload for unsupported estado")
	}
	if entregas.mutated() {
		t.Fatal("store mutated for unsupported estado")
	}
}

func TestHandleBadArity(t *testing.T) {
	p := newProcesar(newFakeEntregas(12), &fakeRetrier{})
	_, err := p.Handle(context.Background(), []any{float64(12)}, nil)
	if err == nil {
		t.Fatal("expected error for wrong argument count")
	}
}

func TestDecodeInfoFromTypedValue(t *testing.T) {
	want := workflow.ConfirmacionInfo{UsuarioID: 1, Direccion: "x", NombreRecibe: "y",
		FirmaRecibe: "z", FirmaPayload: "f", PedidoID: 2, EntregaID: 3}
	got, err := decodeInfo(want)
	if err != nil || got != want {
		t.Fatalf("decodeInfo typed = %+v, %v", got, err)
	}
}

func TestStoreErrorPropagates(t *testing.T) {
	entregas := newFakeEntregas(12)
	p := newProcesar(entregas, &fakeRetrier{})
	brokenGet := &erroringEntregas{inner: entregas}

	p.entregas = brokenGet
	_, err := p.Handle(context.Background(), []any{float64(12), store.EstadoEntregada, float64(0), infoArgs()}, nil)
	if err == nil {
		t.Fatal("expected store error to propagate")
	}
}

type erroringEntregas struct{ inner *fakeEntregas }

func (e *erroringEntregas) Get(context.Context, int64) (store.Entrega, error) {
	return store.Entrega{}, errors.New("db down")
}
func (e *erroringEntregas) SetEstado(ctx context.Context, id int64, estado string) error {
	return e.inner.SetEstado(ctx, id, estado)
}
func (e *erroringEntregas) Confirm(ctx context.Context, id int64, c store.ConfirmacionEntrega) error {
	return e.inner.Confirm(ctx, id, c)
}
