package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is applied at service start; statements are idempotent so
// concurrent replicas can race on boot without harm.
const schema = `
CREATE TABLE IF NOT EXISTS entregas (
	id               BIGSERIAL PRIMARY KEY,
	direccion        TEXT        NOT NULL DEFAULT '',
	pedido_id        BIGINT      NOT NULL DEFAULT 0,
	estado           TEXT        NOT NULL DEFAULT 'registered',
	nombre_recibe    TEXT,
	firma_recibe     TEXT,
	integridad_firma TEXT,
	fecha_entrega    TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS usuarios (
	id         BIGSERIAL PRIMARY KEY,
	nombre     TEXT NOT NULL UNIQUE,
	contrasena TEXT NOT NULL,
	roles      TEXT NOT NULL DEFAULT 'usuario',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the tables when they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
