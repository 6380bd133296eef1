// Package reconcile re-submits deliveries that were processed while the
// downstream confirmation system was unavailable. Resubmission goes back
// through the public task endpoint so each attempt is a fresh, signed
// dispatch.
package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/entregahub/entregahub/internal/logging"
	"github.com/entregahub/entregahub/internal/metrics"
	"github.com/entregahub/entregahub/internal/store"
	"github.com/entregahub/entregahub/internal/workflow"
)

// StatusRetrySubmitted means a follow-up task was accepted by the API.
const StatusRetrySubmitted = "RETRY_SUBMITTED"

const (
	DefaultMaxRetries = 3
	defaultTimeout    = 10 * time.Second
	jitterBase        = 0.1
)

// Result describes how the retry loop ended.
type Result struct {
	Estado   string `json:"estado"`
	TaskID   string `json:"task_id,omitempty"`
	Attempts int    `json:"attempts"`
}

// Reconciler drives the bounded retry loop against the task endpoint.
type Reconciler struct {
	baseURL    string
	apiKey     string
	maxRetries int
	http       *http.Client
	log        *logging.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(baseURL, apiKey string, maxRetries int, log *logging.Logger) *Reconciler {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if log == nil {
		log = logging.New("reconcile")
	}
	return &Reconciler{
		baseURL:    baseURL,
		apiKey:     apiKey,
		maxRetries: maxRetries,
		http:       &http.Client{Timeout: defaultTimeout},
		log:        log,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff is a jittered delay that shrinks as the attempt number grows:
// a random base below 100ms raised to the attempt number.
func backoff(attempt int) time.Duration {
	secs := math.Pow(rand.Float64()*jitterBase, float64(attempt))
	return time.Duration(secs * float64(time.Second))
}

type retryRequest struct {
	Tipo             string                    `json:"tipo"`
	EntregaID        int64                     `json:"entrega_id"`
	RetryCount       int                       `json:"_retry_count"`
	ConfirmacionInfo workflow.ConfirmacionInfo `json:"confirmacion_info"`
}

type retryResponse struct {
	Task struct {
		TaskID string `json:"task_id"`
	} `json:"task"`
	TaskID string `json:"task_id"`
}

// Run retries submission until one attempt is accepted or the retry
// budget is spent. currentRetry is how many retries this delivery has
// already consumed; when it is at or past the limit no request is made.
func (r *Reconciler) Run(ctx context.Context, entregaID int64, currentRetry int, info workflow.ConfirmacionInfo) Result {
	if currentRetry >= r.maxRetries {
		metrics.ReconcileOutcomesTotal.WithLabelValues("max_retries").Inc()
		return Result{Estado: store.EstadoFailedMaxRetries}
	}

	attempts := 0
	for attempt := currentRetry; attempt < r.maxRetries; attempt++ {
		if err := r.sleep(ctx, backoff(attempt)); err != nil {
			r.log.WithContext(ctx).WithEntrega(entregaID).Warn("reintento cancelado")
			metrics.ReconcileOutcomesTotal.WithLabelValues("cancelled").Inc()
			return Result{Estado: store.EstadoFailedMaxRetries, Attempts: attempts}
		}

		attempts++
		metrics.ReconcileAttemptsTotal.Inc()

		taskID, err := r.submit(ctx, entregaID, attempt+1, info)
		if err == nil {
			r.log.WithContext(ctx).WithEntrega(entregaID).WithTask(taskID).
				WithField("attempt", attempt+1).Info("reintento aceptado")
			metrics.ReconcileOutcomesTotal.WithLabelValues("submitted").Inc()
			return Result{Estado: StatusRetrySubmitted, TaskID: taskID, Attempts: attempts}
		}
		r.log.WithContext(ctx).WithEntrega(entregaID).WithError(err).
			WithField("attempt", attempt+1).Warn("reintento fallido")
	}

	metrics.ReconcileOutcomesTotal.WithLabelValues("max_retries").Inc()
	return Result{Estado: store.EstadoFailedMaxRetries, Attempts: attempts}
}

func (r *Reconciler) submit(ctx context.Context, entregaID int64, retryCount int, info workflow.ConfirmacionInfo) (string, error) {
	body, err := json.Marshal(retryRequest{
		Tipo:             "procesar_entrega",
		EntregaID:        entregaID,
		RetryCount:       retryCount,
		ConfirmacionInfo: info,
	})
	if err != nil {
		return "", fmt.Errorf("marshal retry request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/tareas", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build retry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("i-api-key", r.apiKey)

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit retry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("submit retry: status %d", resp.StatusCode)
	}

	var out retryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode retry response: %w", err)
	}
	if out.Task.TaskID != "" {
		return out.Task.TaskID, nil
	}
	return out.TaskID, nil
}
