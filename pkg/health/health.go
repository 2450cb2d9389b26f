// Package health implements liveness and readiness probes. Each probe runs
// its check on a background ticker and flips state only after consecutive
// results cross a threshold, so a single slow database round trip does not
// take the service out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc reports whether a dependency is usable. A nil return means
// healthy.
type CheckFunc func(ctx context.Context) error

// Kind separates process-alive probes from ready-for-traffic probes.
type Kind int

const (
	// Liveness probes detect a wedged process.
	Liveness Kind = iota
	// Readiness probes detect missing dependencies.
	Readiness
)

const (
	failAfter    = 3
	recoverAfter = 1
)

// probe holds one check and its threshold state. Counters are touched only by
// the single loop goroutine; ok and lastErr are shared with HTTP handlers.
type probe struct {
	name    string
	kind    Kind
	timeout time.Duration
	check   CheckFunc

	ok      atomic.Bool
	lastErr atomic.Pointer[error]

	fails     int
	successes int
}

func (p *probe) tick(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.check(cctx)
	cancel()
	p.lastErr.Store(&err)

	if err != nil {
		p.successes = 0
		if p.fails++; p.fails >= failAfter {
			p.ok.Store(false)
		}
		return
	}
	p.fails = 0
	if p.successes++; p.successes >= recoverAfter {
		p.ok.Store(true)
	}
}

func (p *probe) failure() (string, bool) {
	if p.ok.Load() {
		return "", false
	}
	if err := p.lastErr.Load(); err != nil && *err != nil {
		return (*err).Error(), true
	}
	return "check is unhealthy", true
}

// Checker owns the registered probes and serves the probe endpoints.
type Checker struct {
	ready atomic.Bool

	mu     sync.Mutex
	probes []*probe
	cancel context.CancelFunc
}

// NewChecker creates a Checker. The service reports not ready until SetReady
// is called.
func NewChecker() *Checker {
	return &Checker{}
}

// Register adds a probe. Probes start healthy; they must fail consecutively
// before they report unhealthy.
func (c *Checker) Register(kind Kind, name string, timeout time.Duration, check CheckFunc) {
	p := &probe{name: name, kind: kind, timeout: timeout, check: check}
	p.ok.Store(true)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes = append(c.probes, p)
}

// Start launches one goroutine per probe, each ticking at interval.
func (c *Checker) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	probes := append([]*probe(nil), c.probes...)
	c.mu.Unlock()

	for _, p := range probes {
		go func(p *probe) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			p.tick(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.tick(ctx)
				}
			}
		}(p)
	}
}

// Stop cancels all probe goroutines.
func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// SetReady flips the manual readiness gate. Set false during shutdown to
// drain traffic before the listener closes.
func (c *Checker) SetReady(ready bool) { c.ready.Store(ready) }

func (c *Checker) snapshot(kind Kind) []*probe {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*probe, 0, len(c.probes))
	for _, p := range c.probes {
		if p.kind == kind {
			out = append(out, p)
		}
	}
	return out
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveHandler serves the liveness endpoint.
func (c *Checker) LiveHandler(w http.ResponseWriter, _ *http.Request) {
	writeReport(w, c.failures(Liveness))
}

// ReadyHandler serves the readiness endpoint. It fails while the manual gate
// is down even if every probe passes.
func (c *Checker) ReadyHandler(w http.ResponseWriter, _ *http.Request) {
	failures := c.failures(Readiness)
	if !c.ready.Load() {
		if failures == nil {
			failures = make(map[string]string, 1)
		}
		failures["_gate"] = "service is not ready"
	}
	writeReport(w, failures)
}

func (c *Checker) failures(kind Kind) map[string]string {
	var failures map[string]string
	for _, p := range c.snapshot(kind) {
		if msg, failed := p.failure(); failed {
			if failures == nil {
				failures = make(map[string]string)
			}
			failures[p.name] = msg
		}
	}
	return failures
}

func writeReport(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	resp := report{Status: "ok"}
	code := http.StatusOK
	if len(failures) > 0 {
		resp = report{Status: "unhealthy", Checks: failures}
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
