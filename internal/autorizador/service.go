// Package autorizador is the signature-authority service: user accounts,
// token issuance and the generation/validation of confirmation-payload
// signatures. The authority key lives only in this process.
package autorizador

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/entregahub/entregahub/internal/auth"
	"github.com/entregahub/entregahub/internal/logging"
	"github.com/entregahub/entregahub/internal/metrics"
	"github.com/entregahub/entregahub/internal/signing"
	"github.com/entregahub/entregahub/internal/store"
)

// UsuarioStore is the account persistence surface.
type UsuarioStore interface {
	Create(ctx context.Context, nombre, contrasenaHash, roles string) (store.Usuario, error)
	GetByNombre(ctx context.Context, nombre string) (store.Usuario, error)
}

// Server holds the authority's HTTP handlers.
type Server struct {
	usuarios UsuarioStore
	tokens   *auth.Service
	key      signing.AuthorityKey
	validate *validator.Validate
	log      *logging.Logger
}

func NewServer(usuarios UsuarioStore, tokens *auth.Service, key signing.AuthorityKey, log *logging.Logger) *Server {
	if log == nil {
		log = logging.New("autorizador")
	}
	return &Server{
		usuarios: usuarios,
		tokens:   tokens,
		key:      key,
		validate: validator.New(),
		log:      log,
	}
}

// Router mounts all authority routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
	})
	r.Post("/signup", s.handleSignup)
	r.Post("/login", s.handleLogin)
	// Validation is open: callers prove nothing by asking, and the
	// logistics service calls it with only its API credential.
	r.Post("/validate-signature", s.handleValidateSignature)

	r.Group(func(r chi.Router) {
		r.Use(s.tokens.RequireToken())
		r.Post("/generar-firma", s.handleGenerarFirma)
	})

	return r
}

type credentialsRequest struct {
	Nombre     string `json:"nombre" validate:"required,min=3"`
	Contrasena string `json:"contrasena" validate:"required,min=6"`
	Roles      string `json:"roles,omitempty"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "nombre y contrasena son obligatorios")
		return
	}
	if req.Roles == "" {
		req.Roles = "usuario"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Contrasena), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "no se pudo registrar el usuario")
		return
	}

	u, err := s.usuarios.Create(r.Context(), req.Nombre, string(hash), req.Roles)
	if err != nil {
		if errors.Is(err, store.ErrUsuarioExists) {
			writeError(w, http.StatusConflict, "el nombre de usuario ya existe")
			return
		}
		s.log.WithContext(r.Context()).WithError(err).Error("signup fallido")
		writeError(w, http.StatusInternalServerError, "no se pudo registrar el usuario")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	u, err := s.usuarios.GetByNombre(r.Context(), req.Nombre)
	if err != nil {
		// Same answer for unknown user and wrong password.
		writeError(w, http.StatusUnauthorized, "credenciales inválidas")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Contrasena), []byte(req.Contrasena)) != nil {
		writeError(w, http.StatusUnauthorized, "credenciales inválidas")
		return
	}

	token, err := s.tokens.IssueToken(auth.Identity{
		UsuarioID: u.ID,
		Nombre:    u.Nombre,
		Roles:     strings.Split(u.Roles, ","),
	})
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("emitir token fallido")
		writeError(w, http.StatusInternalServerError, "no se pudo emitir el token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type generarFirmaRequest struct {
	Payload map[string]any `json:"payload"`
}

// handleGenerarFirma signs a confirmation payload on behalf of the
// authenticated user. The usuario_id always comes from the token, so a
// caller cannot sign payloads for someone else.
func (s *Server) handleGenerarFirma(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "token requerido")
		return
	}

	var req generarFirmaRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Payload) == 0 {
		writeError(w, http.StatusBadRequest, "payload requerido")
		return
	}
	req.Payload["usuario_id"] = id.UsuarioID

	firma, err := s.key.Sign(req.Payload)
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("firmar payload fallido")
		writeError(w, http.StatusInternalServerError, "no se pudo firmar el payload")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"firma":   firma,
		"payload": req.Payload,
	})
}

type validateSignatureRequest struct {
	Payload any    `json:"payload"`
	Firma   string `json:"firma"`
}

func (s *Server) handleValidateSignature(w http.ResponseWriter, r *http.Request) {
	var req validateSignatureRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Payload == nil || req.Firma == "" {
		writeError(w, http.StatusBadRequest, "payload y firma son obligatorios")
		return
	}

	valid := s.key.Validate(req.Payload, req.Firma)
	if !valid {
		metrics.SignatureFailuresTotal.WithLabelValues("authority").Inc()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"firma_valida": valid})
}
