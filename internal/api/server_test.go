package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entregahub/entregahub/internal/auth"
	"github.com/entregahub/entregahub/internal/dispatch"
	"github.com/entregahub/entregahub/internal/store"
	"github.com/entregahub/entregahub/internal/workflow"
)

type stubDispatcher struct {
	dispatched []string
	result     dispatch.Result
	view       dispatch.ResultView
	status     string
	inflight   dispatch.InFlightList
}

func (s *stubDispatcher) Dispatch(_ context.Context, taskName string, _ []any, _ map[string]any) dispatch.Result {
	s.dispatched = append(s.dispatched, taskName)
	if s.result.TaskName == "" {
		return dispatch.Result{TaskID: "task-1", TaskName: taskName, Status: dispatch.StatusPending}
	}
	return s.result
}

func (s *stubDispatcher) GetResult(context.Context, string) dispatch.ResultView { return s.view }
func (s *stubDispatcher) GetStatus(context.Context, string) string              { return s.status }
func (s *stubDispatcher) ListAvailable() []string                               { return []string{"logistica.procesar_entrega"} }
func (s *stubDispatcher) ListInFlight(context.Context) dispatch.InFlightList    { return s.inflight }

type stubConfirmer struct {
	calls   int
	lastID  int64
	retries int
	outcome workflow.Outcome
	err     error
}

func (s *stubConfirmer) Confirm(_ context.Context, entregaID int64, retryCount int, _ workflow.ConfirmacionInfo) (workflow.Outcome, error) {
	s.calls++
	s.lastID = entregaID
	s.retries = retryCount
	return s.outcome, s.err
}

type stubEntregas struct {
	created []store.Entrega
	err     error
}

func (s *stubEntregas) Create(_ context.Context, direccion string, pedidoID int64, estado string) (store.Entrega, error) {
	e := store.Entrega{ID: int64(len(s.created) + 1), Direccion: direccion, PedidoID: pedidoID, Estado: estado}
	s.created = append(s.created, e)
	return e, s.err
}

func (s *stubEntregas) Get(_ context.Context, id int64) (store.Entrega, error) {
	for _, e := range s.created {
		if e.ID == id {
			return e, nil
		}
	}
	return store.Entrega{}, store.ErrEntregaNotFound
}

func (s *stubEntregas) List(context.Context) ([]store.Entrega, error) {
	return s.created, s.err
}

type testEnv struct {
	srv        *httptest.Server
	dispatcher *stubDispatcher
	confirmer  *stubConfirmer
	entregas   *stubEntregas
	token      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tokens := auth.NewService("secreto-test", time.Hour)
	token, err := tokens.IssueToken(auth.Identity{UsuarioID: 1, Nombre: "tester"})
	require.NoError(t, err)

	env := &testEnv{
		dispatcher: &stubDispatcher{status: "PENDING"},
		confirmer:  &stubConfirmer{outcome: workflow.Outcome{Estado: store.EstadoEntregada, Task: dispatch.Result{TaskID: "task-9"}}},
		entregas:   &stubEntregas{},
		token:      token,
	}
	s := NewServer(env.dispatcher, env.confirmer, env.entregas, tokens, "clave-servicio", nil, nil, nil)
	env.srv = httptest.NewServer(s.Router())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, auth func(*http.Request)) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if auth != nil {
		auth(req)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) bearer(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+e.token)
}

func apiKey(req *http.Request) {
	req.Header.Set("i-api-key", "clave-servicio")
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestPingIsOpen(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/ping", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	decode(t, resp, &out)
	assert.Equal(t, "pong", out["message"])
}

func TestEntregasRequireToken(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/entregas", nil, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateEntrega(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/entregas",
		map[string]any{"direccion": "Calle 10 #5-23", "pedido_id": 33}, env.bearer)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var created store.Entrega
	decode(t, resp, &created)
	assert.Equal(t, store.EstadoRegistrada, created.Estado)
	assert.Equal(t, int64(33), created.PedidoID)
}

func TestCreateEntregaValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/entregas",
		map[string]any{"direccion": "x"}, env.bearer)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out map[string]any
	decode(t, resp, &out)
	campos := out["campos"].(map[string]any)
	assert.Contains(t, campos, "Direccion")
	assert.Contains(t, campos, "PedidoID")
	assert.Empty(t, env.entregas.created)
}

func TestGetEntregaNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/entregas/99", nil, env.bearer)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func confirmBody() map[string]any {
	return map[string]any{
		"_retry_count": 0,
		"confirmacion_info": map[string]any{
			"usuario_id":    7,
			"direccion":     "Calle 10 #5-23",
			"nombre_recibe": "Carlos Pérez",
			"firma_recibe":  "data:image/png;base64,abc",
			"firma_payload": "deadbeef",
			"pedido_id":     33,
			"entrega_id":    12,
		},
	}
}

func TestConfirmarSuccess(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/entrega/12/confirmar", confirmBody(), env.bearer)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out workflow.Outcome
	decode(t, resp, &out)
	assert.Equal(t, store.EstadoEntregada, out.Estado)
	assert.Equal(t, "task-9", out.Task.TaskID)
	assert.Equal(t, int64(12), env.confirmer.lastID)
}

func TestConfirmarValidationError(t *testing.T) {
	env := newTestEnv(t)
	env.confirmer.err = &workflow.ValidationError{Fields: map[string]string{"firma_recibe": "campo requerido"}}

	resp := env.do(t, http.MethodPost, "/entrega/12/confirmar", confirmBody(), env.bearer)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out map[string]any
	decode(t, resp, &out)
	assert.Contains(t, out["campos"].(map[string]any), "firma_recibe")
}

func TestConfirmarInvalidSignature(t *testing.T) {
	env := newTestEnv(t)
	env.confirmer.err = workflow.ErrFirmaInvalida

	resp := env.do(t, http.MethodPost, "/entrega/12/confirmar", confirmBody(), env.bearer)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestConfirmarBadID(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/entrega/abc/confirmar", confirmBody(), env.bearer)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, env.confirmer.calls)
}

func TestCreateTareaWithServiceCredential(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]any{
		"tipo":              "procesar_entrega",
		"entrega_id":        12,
		"_retry_count":      2,
		"confirmacion_info": confirmBody()["confirmacion_info"],
	}
	resp := env.do(t, http.MethodPost, "/tareas", body, apiKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out workflow.Outcome
	decode(t, resp, &out)
	assert.Equal(t, 1, env.confirmer.calls)
	assert.Equal(t, int64(12), env.confirmer.lastID)
	assert.Equal(t, 2, env.confirmer.retries)
}

func TestCreateTareaRequiresCredential(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/tareas", map[string]any{"tipo": "procesar_entrega"}, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, env.confirmer.calls)
}

func TestCreateTareaInventario(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"tipo": "validar_inventario", "producto_id": 5, "cantidad": 2}
	resp := env.do(t, http.MethodPost, "/tareas", body, env.bearer)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	require.Len(t, env.dispatcher.dispatched, 1)
	assert.Equal(t, "logistica.validar_inventario", env.dispatcher.dispatched[0])
}

func TestCreateTareaMonitor(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"tipo": "log_activity", "activity_data": map[string]any{"evento": "corte"}}
	resp := env.do(t, http.MethodPost, "/tareas", body, apiKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	require.Len(t, env.dispatcher.dispatched, 1)
	assert.Equal(t, "monitor.log_activity", env.dispatcher.dispatched[0])
}

func TestCreateTareaUnknownTipo(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/tareas", map[string]any{"tipo": "volar"}, apiKey)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out map[string]any
	decode(t, resp, &out)
	assert.NotEmpty(t, out["disponibles"])
	assert.Empty(t, env.dispatcher.dispatched)
}

func TestListTareas(t *testing.T) {
	env := newTestEnv(t)
	env.dispatcher.inflight = dispatch.InFlightList{
		Tasks:   []dispatch.InFlightEntry{{TaskID: "task-1", State: "ACTIVE"}},
		Skipped: 1,
	}
	resp := env.do(t, http.MethodGet, "/tareas", nil, apiKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	decode(t, resp, &out)
	assert.Len(t, out["tareas"], 1)
	assert.Equal(t, float64(1), out["omitidas"])
	assert.NotEmpty(t, out["disponibles"])
}

func TestGetTareaEstado(t *testing.T) {
	env := newTestEnv(t)
	env.dispatcher.status = "SUCCESS"
	resp := env.do(t, http.MethodGet, "/tarea/task-1/estado", nil, apiKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	decode(t, resp, &out)
	assert.Equal(t, "SUCCESS", out["estado"])
	assert.Equal(t, "task-1", out["task_id"])
}
