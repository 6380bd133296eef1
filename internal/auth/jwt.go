// Package auth issues and validates the access tokens shared between the
// authorization service and the logistics API, and provides the HTTP
// middleware that guards protected endpoints.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller extracted from a bearer token.
type Identity struct {
	UsuarioID int64
	Nombre    string
	Roles     []string
}

// HasRole reports whether the caller carries the given role.
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Service signs and verifies HS256 tokens with a shared secret.
type Service struct {
	secret []byte
	ttl    time.Duration
}

func NewService(secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{secret: []byte(secret), ttl: ttl}
}

// IssueToken mints a token for the given user.
func (s *Service) IssueToken(id Identity) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":     id.UsuarioID,
		"nombre": id.Nombre,
		"roles":  id.Roles,
		"iat":    now.Unix(),
		"exp":    now.Add(s.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateToken parses and verifies a token string.
func (s *Service) ValidateToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}

	id := Identity{}
	if v, ok := claims["id"].(float64); ok {
		id.UsuarioID = int64(v)
	}
	if v, ok := claims["nombre"].(string); ok {
		id.Nombre = v
	}
	switch roles := claims["roles"].(type) {
	case []any:
		for _, r := range roles {
			if s, ok := r.(string); ok {
				id.Roles = append(id.Roles, s)
			}
		}
	case string:
		id.Roles = strings.Split(roles, ",")
	}
	if id.Nombre == "" {
		return Identity{}, fmt.Errorf("token sin claim nombre")
	}
	return id, nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	token := strings.TrimPrefix(h, "Bearer ")
	if token == h {
		return "", false
	}
	return token, true
}

// RequireToken is middleware that rejects requests without a valid bearer
// token. When roles are given the caller must hold at least one of them.
func (s *Service) RequireToken(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, "token requerido")
				return
			}
			id, err := s.ValidateToken(token)
			if err != nil {
				writeUnauthorized(w, "token inválido")
				return
			}
			if len(roles) > 0 && !hasAnyRole(id, roles) {
				writeForbidden(w, "rol insuficiente")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAPIKey is middleware that only admits requests carrying the
// internal service credential in the i-api-key header.
func RequireAPIKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("i-api-key") != apiKey || apiKey == "" {
				writeUnauthorized(w, "credencial de servicio inválida")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTokenOrAPIKey admits either an internal service call (i-api-key)
// or an end user with a valid bearer token. Internal callers get no
// Identity in context.
func (s *Service) RequireTokenOrAPIKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" && r.Header.Get("i-api-key") == apiKey {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, "token o credencial de servicio requerido")
				return
			}
			id, err := s.ValidateToken(token)
			if err != nil {
				writeUnauthorized(w, "token inválido")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func hasAnyRole(id Identity, roles []string) bool {
	for _, r := range roles {
		if id.HasRole(r) {
			return true
		}
	}
	return false
}

// WithIdentity stores the authenticated caller in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext extracts the authenticated caller, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"error":%q}`, msg)
}

func writeForbidden(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	fmt.Fprintf(w, `{"error":%q}`, msg)
}
