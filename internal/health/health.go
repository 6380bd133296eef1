// Package health aggregates liveness of the backing services into one
// readiness answer, served over HTTP by every process.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

const checkTimeout = time.Second

// Pinger is any dependency that can confirm it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker holds named dependencies to verify.
type Checker struct {
	deps map[string]Pinger
}

func NewChecker() *Checker {
	return &Checker{deps: map[string]Pinger{}}
}

// Add registers a dependency under a stable name.
func (c *Checker) Add(name string, dep Pinger) *Checker {
	c.deps[name] = dep
	return c
}

// Healthy returns nil when every dependency answers, or an error naming
// each one that did not.
func (c *Checker) Healthy(ctx context.Context) error {
	var down []string
	for name, dep := range c.deps {
		pingCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := dep.Ping(pingCtx)
		cancel()
		if err != nil {
			down = append(down, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(down) > 0 {
		sort.Strings(down)
		return fmt.Errorf("dependencias caídas: %s", strings.Join(down, "; "))
	}
	return nil
}

// Status is the wire form of a health answer.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// HTTPHandler serves the readiness answer as JSON.
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := Status{OK: true, Message: "ok"}
		if err := c.Healthy(r.Context()); err != nil {
			st.OK = false
			st.Message = err.Error()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(st)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}
}
