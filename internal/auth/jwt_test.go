package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateToken(t *testing.T) {
	svc := NewService("secreto-de-prueba", time.Hour)

	token, err := svc.IssueToken(Identity{UsuarioID: 42, Nombre: "maria", Roles: []string{"repartidor"}})
	require.NoError(t, err)

	id, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id.UsuarioID)
	assert.Equal(t, "maria", id.Nombre)
	assert.True(t, id.HasRole("repartidor"))
	assert.False(t, id.HasRole("admin"))
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := NewService("secreto-a", time.Hour).IssueToken(Identity{UsuarioID: 1, Nombre: "ana"})
	require.NoError(t, err)

	_, err = NewService("secreto-b", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenExpired(t *testing.T) {
	expired := &Service{secret: []byte("secreto"), ttl: -time.Minute}
	token, err := expired.IssueToken(Identity{UsuarioID: 1, Nombre: "ana"})
	require.NoError(t, err)

	_, err = NewService("secreto", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireTokenMiddleware(t *testing.T) {
	svc := NewService("secreto", time.Hour)
	token, err := svc.IssueToken(Identity{UsuarioID: 9, Nombre: "jose", Roles: []string{"repartidor"}})
	require.NoError(t, err)

	var seen Identity
	handler := svc.RequireToken()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"malformed", "Token abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/entregas", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
	assert.Equal(t, "jose", seen.Nombre)
}

func TestRequireTokenRoleCheck(t *testing.T) {
	svc := NewService("secreto", time.Hour)
	token, err := svc.IssueToken(Identity{UsuarioID: 2, Nombre: "ana", Roles: []string{"cliente"}})
	require.NoError(t, err)

	handler := svc.RequireToken("admin")(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAPIKey(t *testing.T) {
	handler := RequireAPIKey("clave-interna")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/tareas", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/tareas", nil)
	req.Header.Set("i-api-key", "clave-interna")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAPIKeyEmptyConfiguredKeyRejectsAll(t *testing.T) {
	handler := RequireAPIKey("")(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/tareas", nil)
	req.Header.Set("i-api-key", "")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireTokenOrAPIKey(t *testing.T) {
	svc := NewService("secreto", time.Hour)
	token, err := svc.IssueToken(Identity{UsuarioID: 3, Nombre: "luz"})
	require.NoError(t, err)

	handler := svc.RequireTokenOrAPIKey("clave-interna")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/tareas", nil)
	req.Header.Set("i-api-key", "clave-interna")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/tareas", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/tareas", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
