// Package dispatch is the single producer-side entry point for enqueuing
// catalog tasks, enriched with the internal signed envelope, and for
// querying broker-side task state.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
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

// Dispatch outcome statuses returned synchronously to producers.
const (
	StatusPending = "PENDING"
	StatusFailed  = "FAILED"
)

// Broker publishes signed envelopes to per-task queues.
type Broker interface {
	Enqueue(ctx context.Context, queue string, env *broker.Envelope) (string, error)
}

// ResultStore reads task state written by workers.
type ResultStore interface {
	Get(ctx context.Context, taskID string) (results.Meta, error)
	ScanMeta(ctx context.Context, limit int) ([]results.Raw, error)
	Inspect(ctx context.Context, state string) (map[string][]results.Snapshot, error)
}

// Result is returned synchronously from Dispatch and never mutated
// afterward; later state is fetched by task id.
type Result struct {
	TaskID    string         `json:"task_id,omitempty"`
	TaskName  string         `json:"task_name"`
	Status    string         `json:"status"`
	Queue     string         `json:"queue,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Args      []any          `json:"args,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ResultView is the read model for one task id.
type ResultView struct {
	TaskID     string         `json:"task_id"`
	Status     string         `json:"status"`
	Ready      bool           `json:"ready"`
	Successful *bool          `json:"successful"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	Progress   map[string]any `json:"progress,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// InFlightEntry is one row of the aggregate task listing.
type InFlightEntry struct {
	TaskID   string `json:"id"`
	TaskName string `json:"name"`
	State    string `json:"state"`
	Worker   string `json:"worker,omitempty"`
	Queue    string `json:"queue,omitempty"`
	Args     []any  `json:"args,omitempty"`
	Result   any    `json:"result,omitempty"`
	Finished string `json:"finished,omitempty"`
	Source   string `json:"source"` // broker | result_backend
}

// InFlightList carries the aggregate plus the count of result-store
// entries whose metadata could not be decoded. A broker or store outage
// degrades the listing rather than failing the whole call.
type InFlightList struct {
	Tasks   []InFlightEntry `json:"tasks"`
	Skipped int             `json:"skipped"`
}

// scanLimit bounds the result-store scan so bulk listing stays cheap.
const scanLimit = 100

// Dispatcher is stateless apart from its client handles and safe for
// concurrent use by any number of producers.
type Dispatcher struct {
	broker Broker
	store  ResultStore
	key    signing.InternalKey
	log    *logging.Logger
}

// New builds a Dispatcher with explicit dependencies; there is no
// process-global instance.
func New(b Broker, store ResultStore, key signing.InternalKey, log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.New("dispatcher")
	}
	return &Dispatcher{broker: b, store: store, key: key, log: log}
}

func failed(taskName, msg string) Result {
	return Result{TaskName: taskName, Status: StatusFailed, Error: msg}
}

// Dispatch validates the invocation against the catalog, signs it and
// enqueues it. Failures are reported in the Result, never raised.
func (d *Dispatcher) Dispatch(ctx context.Context, taskName string, args []any, opts map[string]any) Result {
	ctx, span := tracing.StartSpan(ctx, "dispatch.task",
		attribute.String("task_name", taskName),
		attribute.Int("arg_count", len(args)),
	)
	defer span.End()

	desc, ok := catalog.Lookup(taskName)
	if !ok {
		err := &catalog.ErrUnknownTask{Name: taskName}
		tracing.SetSpanError(ctx, err)
		metrics.TasksDispatchedTotal.WithLabelValues(StatusFailed, "").Inc()
		return failed(taskName, err.Error())
	}

	if err := catalog.ValidateParams(taskName, args); err != nil {
		tracing.SetSpanError(ctx, err)
		metrics.TasksDispatchedTotal.WithLabelValues(StatusFailed, desc.Queue).Inc()
		return failed(taskName, "parámetros inválidos: "+err.Error())
	}

	sig, err := d.key.Sign(broker.SignableFor(taskName, args))
	if err != nil {
		tracing.SetSpanError(ctx, err)
		metrics.TasksDispatchedTotal.WithLabelValues(StatusFailed, desc.Queue).Inc()
		return failed(taskName, "firma interna: "+err.Error())
	}

	merged := make(map[string]any, len(opts)+2)
	for k, v := range opts {
		merged[k] = v
	}
	merged[broker.OptionSignedMessage] = sig
	merged[broker.OptionInfoInternal] = broker.SignableFor(taskName, args)

	env := &broker.Envelope{
		TaskName:     taskName,
		Args:         args,
		Options:      merged,
		TraceHeaders: tracing.PropagateToEnvelope(ctx),
	}

	taskID, err := d.broker.Enqueue(ctx, desc.Queue, env)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		d.log.WithContext(ctx).WithTaskName(taskName).WithQueue(desc.Queue).WithError(err).Error("broker enqueue failed")
		metrics.TasksDispatchedTotal.WithLabelValues(StatusFailed, desc.Queue).Inc()
		return failed(taskName, err.Error())
	}

	span.SetAttributes(attribute.String("task_id", taskID))
	metrics.TasksDispatchedTotal.WithLabelValues(StatusPending, desc.Queue).Inc()
	return Result{
		TaskID:    taskID,
		TaskName:  taskName,
		Status:    StatusPending,
		Queue:     desc.Queue,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Args:      args,
		Options:   merged,
	}
}

// GetResult returns the full view of a task. Store failures surface as a
// view with status ERROR, never as a Go error.
func (d *Dispatcher) GetResult(ctx context.Context, taskID string) ResultView {
	view := ResultView{
		TaskID:    taskID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}

	meta, err := d.store.Get(ctx, taskID)
	switch {
	case errors.Is(err, results.ErrNotFound):
		view.Status = results.StatusPending
		return view
	case err != nil:
		view.Status = results.StatusError
		view.Error = err.Error()
		return view
	}

	view.Status = meta.Status
	switch meta.Status {
	case results.StatusSuccess:
		ok := true
		view.Ready = true
		view.Successful = &ok
		view.Result = meta.Result
	case results.StatusFailure:
		notOK := false
		view.Ready = true
		view.Successful = &notOK
		view.Error = meta.Error
	default:
		// Unfinished: surface whatever progress the worker reported.
		view.Progress = meta.Progress
	}
	return view
}

// GetStatus is the cheap polling variant of GetResult.
func (d *Dispatcher) GetStatus(ctx context.Context, taskID string) string {
	meta, err := d.store.Get(ctx, taskID)
	if errors.Is(err, results.ErrNotFound) {
		return results.StatusPending
	}
	if err != nil {
		return results.StatusError
	}
	return meta.Status
}

// ListAvailable returns the registered task names.
func (d *Dispatcher) ListAvailable() []string {
	return catalog.Names()
}

// ListInFlight aggregates active, scheduled and reserved work from the
// broker registry plus a bounded scan of recently completed tasks. Each
// source that fails contributes nothing instead of failing the call.
func (d *Dispatcher) ListInFlight(ctx context.Context) InFlightList {
	var list InFlightList

	for _, state := range []string{results.StatusActive, results.StatusScheduled, results.StatusReserved} {
		byWorker, err := d.store.Inspect(ctx, state)
		if err != nil {
			d.log.WithContext(ctx).WithError(err).WithField("state", state).Error("inspect failed, skipping source")
			continue
		}
		for worker, snaps := range byWorker {
			for _, snap := range snaps {
				list.Tasks = append(list.Tasks, InFlightEntry{
					TaskID:   snap.TaskID,
					TaskName: snap.TaskName,
					State:    state,
					Worker:   worker,
					Queue:    snap.Queue,
					Source:   "broker",
				})
			}
		}
	}

	raws, err := d.store.ScanMeta(ctx, scanLimit)
	if err != nil {
		d.log.WithContext(ctx).WithError(err).Error("result store scan failed, skipping source")
	}
	for _, raw := range raws {
		var meta results.Meta
		if err := json.Unmarshal(raw.Data, &meta); err != nil {
			// Undecodable metadata still yields a minimal entry.
			list.Tasks = append(list.Tasks, InFlightEntry{
				TaskID: raw.TaskID,
				State:  results.StatusPending,
				Source: "result_backend",
			})
			list.Skipped++
			continue
		}
		list.Tasks = append(list.Tasks, InFlightEntry{
			TaskID:   meta.TaskID,
			TaskName: meta.TaskName,
			State:    meta.Status,
			Worker:   meta.Worker,
			Args:     meta.Args,
			Result:   meta.Result,
			Finished: meta.DateDone,
			Source:   "result_backend",
		})
	}

	return list
}
