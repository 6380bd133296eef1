// Package catalog holds the static registry of dispatchable tasks.
// It carries metadata only: no task code is imported or executed here,
// so producers can enqueue work without depending on worker packages.
package catalog

import (
	"fmt"
	"sort"
	"time"
)

// Well-known task names.
const (
	TaskProcesarEntrega   = "logistica.procesar_entrega"
	TaskValidarInventario = "logistica.validar_inventario"
	TaskGenerarReporte    = "logistica.generar_reporte"
	TaskHealthCheck       = "monitor.health_check"
	TaskLogActivity       = "monitor.log_activity"
	TaskGenerateMetrics   = "monitor.generate_metrics"
	TaskPingLogistica     = "monitor.ping_logistica"
)

// Queue names routed by the broker.
const (
	QueueLogistica = "logistica"
	QueueMonitor   = "monitor"
)

// Descriptor is the immutable metadata for a single registered task.
type Descriptor struct {
	Name        string
	Description string
	Params      []string // expected positional parameter names, in order
	Queue       string
	Timeout     time.Duration
}

var registry = map[string]Descriptor{
	TaskProcesarEntrega: {
		Name:        TaskProcesarEntrega,
		Description: "Procesa una entrega específica",
		Params:      []string{"entrega_id", "status", "_retry_count", "confirmacion_info"},
		Queue:       QueueLogistica,
		Timeout:     300 * time.Second,
	},
	TaskValidarInventario: {
		Name:        TaskValidarInventario,
		Description: "Valida disponibilidad en inventario",
		Params:      []string{"producto_id", "cantidad"},
		Queue:       QueueLogistica,
		Timeout:     60 * time.Second,
	},
	TaskGenerarReporte: {
		Name:        TaskGenerarReporte,
		Description: "Genera reporte de entregas",
		Params:      []string{"fecha_inicio", "fecha_fin"},
		Queue:       QueueLogistica,
		Timeout:     600 * time.Second,
	},
	TaskHealthCheck: {
		Name:        TaskHealthCheck,
		Description: "Verifica salud de servicios",
		Params:      []string{},
		Queue:       QueueMonitor,
		Timeout:     30 * time.Second,
	},
	TaskLogActivity: {
		Name:        TaskLogActivity,
		Description: "Registra actividad del sistema",
		Params:      []string{"activity_data"},
		Queue:       QueueMonitor,
		Timeout:     60 * time.Second,
	},
	TaskGenerateMetrics: {
		Name:        TaskGenerateMetrics,
		Description: "Genera métricas del sistema",
		Params:      []string{},
		Queue:       QueueMonitor,
		Timeout:     120 * time.Second,
	},
	TaskPingLogistica: {
		Name:        TaskPingLogistica,
		Description: "Ping echo al servicio de logística",
		Params:      []string{},
		Queue:       QueueMonitor,
		Timeout:     5 * time.Second,
	},
}

// ErrUnknownTask reports a lookup for a name that is not registered.
type ErrUnknownTask struct {
	Name string
}

func (e *ErrUnknownTask) Error() string {
	return fmt.Sprintf("tarea %q no encontrada en el registro", e.Name)
}

// ErrArityMismatch reports a positional-argument count that does not match
// the descriptor. Validation is structural only; value semantics are the
// caller's responsibility.
type ErrArityMismatch struct {
	Name string
	Want int
	Got  int
}

func (e *ErrArityMismatch) Error() string {
	return fmt.Sprintf("tarea %q: se esperan %d parámetros, recibidos %d", e.Name, e.Want, e.Got)
}

// Lookup returns the descriptor for name. The second return is false when
// the task is not registered.
func Lookup(name string) (Descriptor, bool) {
	d, ok := registry[name]
	return d, ok
}

// ValidateParams checks that args matches the registered arity for name.
func ValidateParams(name string, args []any) error {
	d, ok := registry[name]
	if !ok {
		return &ErrUnknownTask{Name: name}
	}
	if len(args) != len(d.Params) {
		return &ErrArityMismatch{Name: name, Want: len(d.Params), Got: len(args)}
	}
	return nil
}

// Names returns every registered task name, sorted for stable output.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByQueue returns the names of tasks routed to queue, sorted.
func ByQueue(queue string) []string {
	var names []string
	for name, d := range registry {
		if d.Queue == queue {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Queues returns the distinct queue names a worker must consume.
func Queues() []string {
	seen := map[string]bool{}
	var queues []string
	for _, d := range registry {
		if !seen[d.Queue] {
			seen[d.Queue] = true
			queues = append(queues, d.Queue)
		}
	}
	sort.Strings(queues)
	return queues
}
