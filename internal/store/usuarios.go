package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrUsuarioNotFound = errors.New("store: usuario no encontrado")
	ErrUsuarioExists   = errors.New("store: el nombre de usuario ya existe")
)

// Usuario is an authorization-service account. Contrasena holds the
// bcrypt hash, never the plaintext.
type Usuario struct {
	ID         int64  `json:"id"`
	Nombre     string `json:"nombre"`
	Contrasena string `json:"-"`
	Roles      string `json:"roles"` // comma-separated, e.g. "usuario" or "Admin,System"
}

// Usuarios is the pgx-backed user store.
type Usuarios struct {
	pool *pgxpool.Pool
}

// NewUsuarios wraps a connection pool.
func NewUsuarios(pool *pgxpool.Pool) *Usuarios {
	return &Usuarios{pool: pool}
}

// Create inserts a new user. ErrUsuarioExists when the name is taken.
func (s *Usuarios) Create(ctx context.Context, nombre, contrasenaHash, roles string) (Usuario, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM usuarios WHERE nombre = $1)`, nombre,
	).Scan(&exists); err != nil {
		return Usuario{}, fmt.Errorf("check usuario: %w", err)
	}
	if exists {
		return Usuario{}, ErrUsuarioExists
	}

	var u Usuario
	err := s.pool.QueryRow(ctx, `
		INSERT INTO usuarios(nombre, contrasena, roles)
		VALUES ($1, $2, $3)
		RETURNING id, nombre, contrasena, roles`,
		nombre, contrasenaHash, roles,
	).Scan(&u.ID, &u.Nombre, &u.Contrasena, &u.Roles)
	if err != nil {
		return Usuario{}, fmt.Errorf("insert usuario: %w", err)
	}
	return u, nil
}

// GetByNombre loads a user by name.
func (s *Usuarios) GetByNombre(ctx context.Context, nombre string) (Usuario, error) {
	var u Usuario
	err := s.pool.QueryRow(ctx,
		`SELECT id, nombre, contrasena, roles FROM usuarios WHERE nombre = $1`, nombre,
	).Scan(&u.ID, &u.Nombre, &u.Contrasena, &u.Roles)
	if errors.Is(err, pgx.ErrNoRows) {
		return Usuario{}, ErrUsuarioNotFound
	}
	if err != nil {
		return Usuario{}, fmt.Errorf("select usuario: %w", err)
	}
	return u, nil
}
