// The logistica service exposes the delivery API: delivery CRUD, the
// confirmation entry point and the task endpoints backed by the
// dispatcher.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/entregahub/entregahub/internal/api"
	"github.com/entregahub/entregahub/internal/auth"
	"github.com/entregahub/entregahub/internal/authority"
	"github.com/entregahub/entregahub/internal/broker"
	"github.com/entregahub/entregahub/internal/config"
	"github.com/entregahub/entregahub/internal/db"
	"github.com/entregahub/entregahub/internal/dispatch"
	"github.com/entregahub/entregahub/internal/health"
	"github.com/entregahub/entregahub/internal/logging"
	"github.com/entregahub/entregahub/internal/metrics"
	"github.com/entregahub/entregahub/internal/results"
	"github.com/entregahub/entregahub/internal/signing"
	"github.com/entregahub/entregahub/internal/store"
	"github.com/entregahub/entregahub/internal/tracing"
	"github.com/entregahub/entregahub/internal/workflow"
)

// availabilityCheck maps the configured mode onto a check implementation.
func availabilityCheck(cfg config.Availability) workflow.AvailabilityCheck {
	switch cfg.Mode {
	case "always":
		return workflow.AlwaysAvailable{}
	case "probe":
		return workflow.NewHealthProbe(cfg.ProbeURL, 3*time.Second)
	default:
		return workflow.NewSimulatedFlaky(cfg.Probability)
	}
}

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()
	logger := logging.New("logistica")

	if cfg.TracingEnabled {
		shutdown, err := tracing.InitTracing(ctx, "logistica")
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
	if err := store.EnsureSchema(ctx, pool); err != nil {
		logger.Plain().WithError(err).Fatal("creación de esquema fallida")
	}

	resultStore, err := results.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Plain().WithError(err).Fatal("conexión a redis fallida")
	}
	defer resultStore.Close()

	producer, err := broker.NewProducer(cfg.NSQ.NsqdTCPAddr)
	if err != nil {
		logger.Plain().WithError(err).Fatal("conexión a nsqd fallida")
	}
	defer producer.Stop()

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	dispatcher := dispatch.New(producer, resultStore,
		signing.NewInternalKey(cfg.Keys.Internal), logger)

	confirmer := workflow.NewConfirmer(
		dispatcher,
		authority.New(cfg.Authority.URL, cfg.Keys.APIKey, cfg.Authority.Timeout),
		availabilityCheck(cfg.Availability),
		logger,
	)

	checker := health.NewChecker().
		Add("postgres", pool).
		Add("redis", resultStore).
		Add("nsq", producer)

	server := api.NewServer(
		dispatcher,
		confirmer,
		store.NewEntregas(pool),
		auth.NewService(cfg.Keys.JWT, cfg.TokenTTL),
		cfg.Keys.APIKey,
		checker,
		reg,
		logger,
	)

	httpSrv := &http.Server{Addr: cfg.HTTPPort, Handler: server.Router()}
	go func() {
		logger.Plain().WithField("addr", cfg.HTTPPort).Info("servicio logística iniciado")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("servidor HTTP falló")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	logger.Plain().Info("servicio logística detenido")
}
