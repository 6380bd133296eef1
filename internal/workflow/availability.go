package workflow

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// AvailabilityCheck decides whether the downstream confirmation system is
// reachable right now. The answer picks the estado the dispatched task
// will carry, it never blocks the confirmation response.
type AvailabilityCheck interface {
	Available(ctx context.Context) bool
}

// AlwaysAvailable reports the downstream system as up unconditionally.
type AlwaysAvailable struct{}

func (AlwaysAvailable) Available(context.Context) bool { return true }

// SimulatedFlaky reports availability with probability P. It stands in
// for the downstream system in environments where none exists.
type SimulatedFlaky struct {
	P float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulatedFlaky(p float64) *SimulatedFlaky {
	return &SimulatedFlaky{P: p, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (f *SimulatedFlaky) Available(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rng == nil {
		f.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return f.rng.Float64() < f.P
}

// HealthProbe asks the downstream system's health endpoint. Any response
// with a 2xx status counts as available.
type HealthProbe struct {
	URL  string
	HTTP *http.Client
}

func NewHealthProbe(url string, timeout time.Duration) *HealthProbe {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HealthProbe{URL: url, HTTP: &http.Client{Timeout: timeout}}
}

func (p *HealthProbe) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return false
	}
	client := p.HTTP
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
