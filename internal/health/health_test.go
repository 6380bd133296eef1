package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var (
	up   = pingFunc(func(context.Context) error { return nil })
	down = pingFunc(func(context.Context) error { return errors.New("connection refused") })
)

func TestHealthyAllUp(t *testing.T) {
	c := NewChecker().Add("postgres", up).Add("redis", up)
	if err := c.Healthy(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHealthyNamesDownDependencies(t *testing.T) {
	c := NewChecker().Add("postgres", up).Add("redis", down).Add("nsq", down)
	err := c.Healthy(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "redis") || !strings.Contains(err.Error(), "nsq") {
		t.Fatalf("error does not name the failed deps: %v", err)
	}
	if strings.Contains(err.Error(), "postgres") {
		t.Fatalf("error names a healthy dep: %v", err)
	}
}

func TestHealthyEmptyChecker(t *testing.T) {
	if err := NewChecker().Healthy(context.Background()); err != nil {
		t.Fatalf("empty checker must be healthy, got %v", err)
	}
}

func TestHTTPHandler(t *testing.T) {
	tests := []struct {
		name     string
		checker  *Checker
		wantCode int
		wantOK   bool
	}{
		{"healthy", NewChecker().Add("postgres", up), http.StatusOK, true},
		{"unhealthy", NewChecker().Add("postgres", down), http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.checker.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var st Status
			if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if st.OK != tt.wantOK {
				t.Fatalf("ok = %v, want %v", st.OK, tt.wantOK)
			}
		})
	}
}
