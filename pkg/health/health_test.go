package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pass() CheckFunc {
	return func(_ context.Context) error { return nil }
}

func fail(msg string) CheckFunc {
	return func(_ context.Context) error { return errors.New(msg) }
}

func decode(t *testing.T, w *httptest.ResponseRecorder) report {
	t.Helper()
	var r report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&r))
	return r
}

func TestLiveHandler(t *testing.T) {
	c := NewChecker()
	c.Register(Liveness, "goroutines", time.Second, pass())

	w := httptest.NewRecorder()
	c.LiveHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w).Status)
}

func TestProbeFlipsAfterConsecutiveFailures(t *testing.T) {
	c := NewChecker()
	c.Register(Liveness, "db", time.Second, fail("connection refused"))

	ctx := context.Background()
	p := c.probes[0]

	// Below the threshold the probe still reports healthy.
	p.tick(ctx)
	p.tick(ctx)
	w := httptest.NewRecorder()
	c.LiveHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	p.tick(ctx)
	w = httptest.NewRecorder()
	c.LiveHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	body := decode(t, w)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Checks["db"])
}

func TestProbeRecovers(t *testing.T) {
	c := NewChecker()
	healthy := false
	c.Register(Readiness, "db", time.Second, func(_ context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	})
	c.SetReady(true)

	ctx := context.Background()
	p := c.probes[0]
	for range failAfter {
		p.tick(ctx)
	}

	w := httptest.NewRecorder()
	c.ReadyHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	healthy = true
	p.tick(ctx)

	w = httptest.NewRecorder()
	c.ReadyHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyGate(t *testing.T) {
	c := NewChecker()
	c.Register(Readiness, "db", time.Second, pass())

	w := httptest.NewRecorder()
	c.ReadyHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, decode(t, w).Checks, "_gate")

	c.SetReady(true)
	w = httptest.NewRecorder()
	c.ReadyHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
