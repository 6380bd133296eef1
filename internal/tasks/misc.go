package tasks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/entregahub/entregahub/internal/logging"
	"github.com/entregahub/entregahub/internal/store"
)

// simulatedStock stands in for a warehouse system that is not part of
// this deployment.
const simulatedStock = 100

// ValidarInventario checks requested quantity against available stock.
func ValidarInventario(_ context.Context, args []any, _ map[string]any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("validar_inventario espera 2 argumentos, recibió %d", len(args))
	}
	productoID, ok := asInt64(args[0])
	if !ok {
		return nil, fmt.Errorf("producto_id inválido: %v", args[0])
	}
	cantidad, ok := asInt(args[1])
	if !ok {
		return nil, fmt.Errorf("cantidad inválida: %v", args[1])
	}

	return map[string]any{
		"producto_id": productoID,
		"cantidad":    cantidad,
		"disponible":  cantidad <= simulatedStock,
		"stock":       simulatedStock,
	}, nil
}

// EntregaLister is the read slice of the delivery store the reporting
// task needs.
type EntregaLister interface {
	List(ctx context.Context) ([]store.Entrega, error)
}

// GenerarReporte summarizes deliveries whose fecha_entrega falls in the
// requested window, grouped by estado.
func GenerarReporte(lister EntregaLister) Handler {
	return func(ctx context.Context, args []any, _ map[string]any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("generar_reporte espera 2 argumentos, recibió %d", len(args))
		}
		inicio, err := parseFecha(args[0], "fecha_inicio")
		if err != nil {
			return nil, err
		}
		fin, err := parseFecha(args[1], "fecha_fin")
		if err != nil {
			return nil, err
		}

		entregas, err := lister.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("listar entregas: %w", err)
		}

		porEstado := map[string]int{}
		total := 0
		for _, e := range entregas {
			if e.FechaEntrega != nil && (e.FechaEntrega.Before(inicio) || e.FechaEntrega.After(fin)) {
				continue
			}
			porEstado[e.Estado]++
			total++
		}
		return map[string]any{
			"fecha_inicio": inicio.Format("2006-01-02"),
			"fecha_fin":    fin.Format("2006-01-02"),
			"total":        total,
			"por_estado":   porEstado,
		}, nil
	}
}

func parseFecha(v any, name string) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%s inválida: %v", name, v)
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%s inválida: %q", name, s)
}

// Pinger is anything whose liveness the health-check task can verify.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck reports reachability of the backing services.
func HealthCheck(deps map[string]Pinger) Handler {
	return func(ctx context.Context, _ []any, _ map[string]any) (any, error) {
		status := map[string]any{}
		healthy := true
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				status[name] = "down: " + err.Error()
				healthy = false
			} else {
				status[name] = "ok"
			}
		}
		status["healthy"] = healthy
		status["checked_at"] = time.Now().UTC().Format(time.RFC3339)
		return status, nil
	}
}

// LogActivity records an activity payload to the structured log.
func LogActivity(log *logging.Logger) Handler {
	if log == nil {
		log = logging.New("monitor")
	}
	return func(ctx context.Context, args []any, _ map[string]any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("log_activity espera 1 argumento, recibió %d", len(args))
		}
		log.WithContext(ctx).WithField("activity", args[0]).Info("actividad registrada")
		return map[string]any{"registrado": true}, nil
	}
}

// GenerateMetrics reports basic runtime figures for the worker process.
func GenerateMetrics(_ context.Context, _ []any, _ map[string]any) (any, error) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return map[string]any{
		"goroutines":    runtime.NumGoroutine(),
		"heap_alloc_mb": float64(m.HeapAlloc) / (1 << 20),
		"gc_cycles":     m.NumGC,
		"generated_at":  time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// PingLogistica calls the logistics API ping endpoint and echoes what it
// answered.
func PingLogistica(baseURL string, client *http.Client) Handler {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(ctx context.Context, _ []any, _ map[string]any) (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/ping", nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("ping logística: %w", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"status": resp.StatusCode,
			"body":   string(body),
		}, nil
	}
}
