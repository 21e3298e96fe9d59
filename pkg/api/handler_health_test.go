package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyloom/storyloom/pkg/queue"
)

func TestHealthHandler(t *testing.T) {
	t.Run("healthy with no optional components", func(t *testing.T) {
		s := NewServer(&fakeDispatcher{}, &fakeReader{}, nil, nil)

		rec := doRequest(s, http.MethodGet, "/healthz", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, healthStatusHealthy, resp.Status)
	})

	t.Run("reports a healthy worker pool", func(t *testing.T) {
		pool := &fakePool{health: &queue.PoolHealth{IsHealthy: true, BrokerReachable: true}}
		s := NewServer(&fakeDispatcher{}, &fakeReader{}, pool, nil)

		rec := doRequest(s, http.MethodGet, "/healthz", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, healthStatusHealthy, resp.Status)
		assert.Equal(t, healthStatusHealthy, resp.Checks["worker_pool"].Status)
	})

	t.Run("degrades when the broker is unreachable", func(t *testing.T) {
		pool := &fakePool{health: &queue.PoolHealth{
			IsHealthy:   false,
			BrokerError: "dial tcp 127.0.0.1:6379: connection refused",
		}}
		s := NewServer(&fakeDispatcher{}, &fakeReader{}, pool, nil)

		rec := doRequest(s, http.MethodGet, "/healthz", "", nil)

		// A sick pool is degraded, not down: submissions still work.
		require.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, healthStatusDegraded, resp.Status)
		assert.Contains(t, resp.Checks["worker_pool"].Message, "connection refused")
	})
}
