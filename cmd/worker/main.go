package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/entregahub/entregahub/internal/broker"
	"github.com/entregahub/entregahub/internal/catalog"
	"github.com/entregahub/entregahub/internal/config"
	"github.com/entregahub/entregahub/internal/db"
	"github.com/entregahub/entregahub/internal/health"
	"github.com/entregahub/entregahub/internal/logging"
	"github.com/entregahub/entregahub/internal/metrics"
	"github.com/entregahub/entregahub/internal/reconcile"
	"github.com/entregahub/entregahub/internal/results"
	"github.com/entregahub/entregahub/internal/secrets"
	"github.com/entregahub/entregahub/internal/signing"
	"github.com/entregahub/entregahub/internal/store"
	"github.com/entregahub/entregahub/internal/tasks"
	"github.com/entregahub/entregahub/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()
	logger := logging.New("entregahub-worker")

	if cfg.TracingEnabled {
		shutdown, err := tracing.InitTracing(ctx, "entregahub-worker")
		if err != nil {
			logger.Plain().WithError(err).Fatal("no se pudo inicializar tracing")
		}
		defer shutdown()
	}

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("conexión a postgres fallida")
	}
	defer pool.Close()

	resultStore, err := results.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Plain().WithError(err).Fatal("conexión a redis fallida")
	}
	defer resultStore.Close()

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	entregas := store.NewEntregas(pool)
	retrier := reconcile.New(cfg.LogisticaURL, cfg.Keys.APIKey, cfg.Retry.MaxRetries, logger)
	codec := secrets.NewCodec(cfg.Keys.Cipher)

	registry := tasks.NewRegistry()
	procesar := tasks.NewProcesarEntrega(entregas, codec, retrier, logger)
	registry.Register(catalog.TaskProcesarEntrega, procesar.Handle)
	registry.Register(catalog.TaskValidarInventario, tasks.ValidarInventario)
	registry.Register(catalog.TaskGenerarReporte, tasks.GenerarReporte(entregas))
	registry.Register(catalog.TaskHealthCheck, tasks.HealthCheck(map[string]tasks.Pinger{
		"postgres": pool,
		"redis":    resultStore,
	}))
	registry.Register(catalog.TaskLogActivity, tasks.LogActivity(logger))
	registry.Register(catalog.TaskGenerateMetrics, tasks.GenerateMetrics)
	registry.Register(catalog.TaskPingLogistica, tasks.PingLogistica(cfg.LogisticaURL, nil))

	executor := tasks.NewExecutor(registry, signing.NewInternalKey(cfg.Keys.Internal),
		resultStore, cfg.Worker.Name, logger)

	// Health and metrics endpoint for the worker process.
	checker := health.NewChecker().Add("postgres", pool).Add("redis", resultStore)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", checker.HTTPHandler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Worker.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("servidor HTTP del worker iniciado")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("servidor HTTP del worker falló")
		}
	}()

	// One consumer per queue, all on the shared worker channel so queued
	// tasks are load-balanced across worker processes.
	var consumers []*nsq.Consumer
	for _, queue := range catalog.Queues() {
		conf := nsq.NewConfig()
		conf.MaxInFlight = cfg.Worker.Concurrency
		consumer, err := nsq.NewConsumer(queue, cfg.NSQ.WorkerChannel, conf)
		if err != nil {
			logger.Plain().WithQueue(queue).WithError(err).Fatal("creación de consumidor nsq fallida")
		}

		consumer.AddConcurrentHandlers(nsq.HandlerFunc(func(m *nsq.Message) error {
			var env broker.Envelope
			if err := json.Unmarshal(m.Body, &env); err != nil {
				logger.Plain().WithError(err).Error("mensaje ilegible, descartado")
				m.Finish()
				return nil
			}
			return executor.Execute(ctx, &env)
		}), cfg.Worker.Concurrency)

		if err := consumer.ConnectToNSQD(cfg.NSQ.NsqdTCPAddr); err != nil {
			logger.Plain().WithQueue(queue).WithError(err).Fatal("conexión a nsqd fallida")
		}
		if err := consumer.ConnectToNSQLookupd(cfg.NSQ.LookupHTTPAddr); err != nil {
			logger.Plain().WithQueue(queue).WithError(err).Fatal("conexión a nsqlookupd fallida")
		}
		consumers = append(consumers, consumer)
	}

	logger.Plain().WithWorker(cfg.Worker.Name).Info("worker iniciado")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("apagando worker")
	for _, c := range consumers {
		c.Stop()
	}
	for _, c := range consumers {
		<-c.StopChan
	}
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("worker detenido")
}
