package api

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureRecorder struct {
	mu       sync.Mutex
	requests []requestObservation
}

type requestObservation struct {
	method string
	route  string
	status int
}

func (r *captureRecorder) ObserveStory(string, time.Duration)          {}
func (r *captureRecorder) ObserveStage(string, string, time.Duration) {}
func (r *captureRecorder) AddScenes(int)                               {}
func (r *captureRecorder) SetQueueDepth(int64, int64, int64, int64)    {}

func (r *captureRecorder) ObserveRequest(method, route string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, requestObservation{method: method, route: route, status: status})
}

func TestSecurityHeaders(t *testing.T) {
	s := NewServer(&fakeDispatcher{}, &fakeReader{}, nil, nil)

	rec := doRequest(s, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRequestMetrics(t *testing.T) {
	t.Run("records the route template, not the raw path", func(t *testing.T) {
		capture := &captureRecorder{}
		s := NewServer(&fakeDispatcher{}, &fakeReader{story: storyFixture("completed")}, nil, nil).
			WithMetrics(capture, nil)

		doRequest(s, http.MethodGet, "/api/v1/stories/story-1/status", "", nil)

		require.Len(t, capture.requests, 1)
		got := capture.requests[0]
		assert.Equal(t, http.MethodGet, got.method)
		assert.Equal(t, "/api/v1/stories/:id/status", got.route)
		assert.Equal(t, http.StatusOK, got.status)
	})

	t.Run("labels unmatched paths without cardinality blowup", func(t *testing.T) {
		capture := &captureRecorder{}
		s := NewServer(&fakeDispatcher{}, &fakeReader{}, nil, nil).WithMetrics(capture, nil)

		doRequest(s, http.MethodGet, "/no/such/route", "", nil)

		require.Len(t, capture.requests, 1)
		assert.Equal(t, "unmatched", capture.requests[0].route)
		assert.Equal(t, http.StatusNotFound, capture.requests[0].status)
	})
}
