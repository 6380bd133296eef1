package catalog

import (
	"errors"
	"testing"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name      string
		task      string
		wantFound bool
		wantQueue string
	}{
		{name: "procesar entrega", task: TaskProcesarEntrega, wantFound: true, wantQueue: QueueLogistica},
		{name: "validar inventario", task: TaskValidarInventario, wantFound: true, wantQueue: QueueLogistica},
		{name: "health check", task: TaskHealthCheck, wantFound: true, wantQueue: QueueMonitor},
		{name: "ping logistica", task: TaskPingLogistica, wantFound: true, wantQueue: QueueMonitor},
		{name: "unregistered task", task: "logistica.no_existe", wantFound: false},
		{name: "empty name", task: "", wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := Lookup(tt.task)
			if ok != tt.wantFound {
				t.Fatalf("Lookup(%q) found = %v, want %v", tt.task, ok, tt.wantFound)
			}
			if ok && d.Queue != tt.wantQueue {
				t.Errorf("Lookup(%q) queue = %q, want %q", tt.task, d.Queue, tt.wantQueue)
			}
			if ok && d.Timeout <= 0 {
				t.Errorf("Lookup(%q) timeout = %v, want > 0", tt.task, d.Timeout)
			}
		})
	}
}

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name        string
		task        string
		args        []any
		wantErr     bool
		wantUnknown bool
		wantArity   bool
	}{
		{
			name: "validar_inventario with exact arity",
			task: TaskValidarInventario,
			args: []any{456, 10},
		},
		{
			name:      "validar_inventario with one arg",
			task:      TaskValidarInventario,
			args:      []any{456},
			wantErr:   true,
			wantArity: true,
		},
		{
			name:      "validar_inventario with three args",
			task:      TaskValidarInventario,
			args:      []any{456, 10, "extra"},
			wantErr:   true,
			wantArity: true,
		},
		{
			name: "procesar_entrega with four args",
			task: TaskProcesarEntrega,
			args: []any{123, "ENTREGADA", 0, map[string]any{}},
		},
		{
			name:      "procesar_entrega missing confirmacion_info",
			task:      TaskProcesarEntrega,
			args:      []any{123, "ENTREGADA", 0},
			wantErr:   true,
			wantArity: true,
		},
		{
			name: "health_check takes no args",
			task: TaskHealthCheck,
			args: []any{},
		},
		{
			name: "health_check with nil args",
			task: TaskHealthCheck,
			args: nil,
		},
		{
			name:        "unknown task",
			task:        "logistica.inexistente",
			args:        []any{1},
			wantErr:     true,
			wantUnknown: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(tt.task, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			var unknown *ErrUnknownTask
			if errors.As(err, &unknown) != tt.wantUnknown {
				t.Errorf("ValidateParams() unknown-task = %v, want %v", !tt.wantUnknown, tt.wantUnknown)
			}
			var arity *ErrArityMismatch
			if errors.As(err, &arity) != tt.wantArity {
				t.Errorf("ValidateParams() arity-mismatch = %v, want %v", !tt.wantArity, tt.wantArity)
			}
			if tt.wantUnknown && unknown.Name != tt.task {
				t.Errorf("ErrUnknownTask.Name = %q, want %q", unknown.Name, tt.task)
			}
		})
	}
}

func TestValidateParamsArityMatchesDescriptor(t *testing.T) {
	// For every registered task, ok iff len(args) == len(params).
	for _, name := range Names() {
		d, _ := Lookup(name)
		exact := make([]any, len(d.Params))
		if err := ValidateParams(name, exact); err != nil {
			t.Errorf("ValidateParams(%q, %d args) = %v, want nil", name, len(exact), err)
		}
		if err := ValidateParams(name, append(exact, "extra")); err == nil {
			t.Errorf("ValidateParams(%q, %d args) = nil, want arity error", name, len(exact)+1)
		}
	}
}

func TestByQueue(t *testing.T) {
	logistica := ByQueue(QueueLogistica)
	if len(logistica) != 3 {
		t.Fatalf("ByQueue(logistica) = %v, want 3 tasks", logistica)
	}
	monitor := ByQueue(QueueMonitor)
	if len(monitor) != 4 {
		t.Fatalf("ByQueue(monitor) = %v, want 4 tasks", monitor)
	}
	if got := ByQueue("no-such-queue"); len(got) != 0 {
		t.Errorf("ByQueue(no-such-queue) = %v, want empty", got)
	}
}

func TestQueues(t *testing.T) {
	queues := Queues()
	if len(queues) != 2 || queues[0] != QueueLogistica || queues[1] != QueueMonitor {
		t.Fatalf("Queues() = %v, want [logistica monitor]", queues)
	}
}
