// The autorizador service owns user accounts and the authority signing
// key: it issues access tokens and generates/validates confirmation
// signatures.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/entregahub/entregahub/internal/auth"
	"github.com/entregahub/entregahub/internal/autorizador"
	"github.com/entregahub/entregahub/internal/config"
	"github.com/entregahub/entregahub/internal/db"
	"github.com/entregahub/entregahub/internal/logging"
	"github.com/entregahub/entregahub/internal/signing"
	"github.com/entregahub/entregahub/internal/store"
	"github.com/entregahub/entregahub/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()
	logger := logging.New("autorizador")

	if cfg.TracingEnabled {
		shutdown, err := tracing.InitTracing(ctx, "autorizador")
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

	server := autorizador.NewServer(
		store.NewUsuarios(pool),
		auth.NewService(cfg.Keys.JWT, cfg.TokenTTL),
		signing.NewAuthorityKey(cfg.Keys.Authority),
		logger,
	)

	httpSrv := &http.Server{Addr: cfg.AuthorityPort, Handler: server.Router()}
	go func() {
		logger.Plain().WithField("addr", cfg.AuthorityPort).Info("servicio autorizador iniciado")
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
	logger.Plain().Info("servicio autorizador detenido")
}
