package tasks

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/entregahub/entregahub/internal/broker"
	"github.com/entregahub/entregahub/internal/catalog"
	"github.com/entregahub/entregahub/internal/logging"
	"github.com/entregahub/entregahub/internal/metrics"
	"github.com/entregahub/entregahub/internal/results"
	"github.com/entregahub/entregahub/internal/signing"
	"github.com/entregahub/entregahub/internal/tracing"
)

// ResultWriter is the slice of the result backend the executor needs.
type ResultWriter interface {
	Save(ctx context.Context, meta results.Meta) error
	MarkInflight(ctx context.Context, state, worker string, snap results.Snapshot) error
	ClearInflight(ctx context.Context, worker, taskID string) error
}

// Executor runs envelopes pulled off the broker.
type Executor struct {
	registry *Registry
	key      signing.InternalKey
	store    ResultWriter
	worker   string
	log      *logging.Logger
}

func NewExecutor(registry *Registry, key signing.InternalKey, store ResultWriter, worker string, log *logging.Logger) *Executor {
	if log == nil {
		log = logging.New("executor")
	}
	return &Executor{registry: registry, key: key, store: store, worker: worker, log: log}
}

// Execute authenticates and runs one envelope. The internal signature is
// recomputed over the envelope's actual task name and args; a mismatch
// aborts before the handler sees the message. Execute returns nil for
// rejected envelopes so the broker does not redeliver them.
func (e *Executor) Execute(ctx context.Context, env *broker.Envelope) error {
	ctx = tracing.ExtractFromEnvelope(ctx, env.TraceHeaders)
	ctx, span := tracing.StartSpan(ctx, "tasks.execute",
		attribute.String("task_name", env.TaskName),
		attribute.String("task_id", env.TaskID))
	defer span.End()

	log := e.log.WithContext(ctx).WithTask(env.TaskID).WithTaskName(env.TaskName).WithWorker(e.worker)
	received := time.Now().UTC()

	if !e.key.Validate(env.Signable(), env.SignedMessage()) {
		metrics.SignatureFailuresTotal.WithLabelValues("internal").Inc()
		metrics.TaskExecutionsTotal.WithLabelValues(env.TaskName, "rejected").Inc()
		log.Error("firma interna inválida, mensaje descartado")
		e.saveMeta(ctx, env, results.Meta{
			Status:       results.StatusFailure,
			Error:        "firma interna inválida",
			DateReceived: received.Format(time.RFC3339Nano),
			DateDone:     time.Now().UTC().Format(time.RFC3339Nano),
		})
		return nil
	}

	handler, err := e.registry.Get(env.TaskName)
	if err != nil {
		metrics.TaskExecutionsTotal.WithLabelValues(env.TaskName, "unknown").Inc()
		log.WithError(err).Error("tarea desconocida")
		e.saveMeta(ctx, env, results.Meta{
			Status:       results.StatusFailure,
			Error:        err.Error(),
			DateReceived: received.Format(time.RFC3339Nano),
			DateDone:     time.Now().UTC().Format(time.RFC3339Nano),
		})
		return nil
	}

	timeout := 5 * time.Minute
	if desc, ok := catalog.Lookup(env.TaskName); ok && desc.Timeout > 0 {
		timeout = desc.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	snap := results.Snapshot{
		TaskID:   env.TaskID,
		TaskName: env.TaskName,
		Queue:    env.Queue,
		Worker:   e.worker,
		State:    results.StatusActive,
		Since:    received.Format(time.RFC3339Nano),
	}
	if err := e.store.MarkInflight(ctx, results.StatusActive, e.worker, snap); err != nil {
		log.WithError(err).Warn("no se pudo registrar la tarea en curso")
	}
	defer func() {
		if err := e.store.ClearInflight(ctx, e.worker, env.TaskID); err != nil {
			log.WithError(err).Warn("no se pudo limpiar el registro de tareas en curso")
		}
	}()

	start := time.Now()
	result, err := handler(runCtx, env.Args, env.Options)
	metrics.TaskDurationSeconds.WithLabelValues(env.TaskName).Observe(time.Since(start).Seconds())

	meta := results.Meta{
		Args:         env.Args,
		DateReceived: received.Format(time.RFC3339Nano),
		DateDone:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err != nil {
		meta.Status = results.StatusFailure
		meta.Error = err.Error()
		metrics.TaskExecutionsTotal.WithLabelValues(env.TaskName, "failure").Inc()
		tracing.SetSpanError(ctx, err)
		log.WithError(err).Error("tarea fallida")
	} else {
		meta.Status = results.StatusSuccess
		meta.Result = result
		metrics.TaskExecutionsTotal.WithLabelValues(env.TaskName, "success").Inc()
		log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("tarea completada")
	}
	e.saveMeta(ctx, env, meta)
	return nil
}

func (e *Executor) saveMeta(ctx context.Context, env *broker.Envelope, meta results.Meta) {
	meta.TaskID = env.TaskID
	meta.TaskName = env.TaskName
	meta.Worker = e.worker
	if err := e.store.Save(ctx, meta); err != nil {
		e.log.WithContext(ctx).WithTask(env.TaskID).WithError(err).Error("no se pudo guardar el resultado")
	}
}
