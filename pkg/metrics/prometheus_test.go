package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStoryCountsByOutcome(t *testing.T) {
	rec := NewPrometheusRecorder()

	rec.ObserveStory("completed", 2*time.Second)
	rec.ObserveStory("completed", 3*time.Second)
	rec.ObserveStory("failed", time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(rec.storiesTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.storiesTotal.WithLabelValues("failed")))
}

func TestObserveStageRecordsBothStatuses(t *testing.T) {
	rec := NewPrometheusRecorder()

	rec.ObserveStage("plan", StageStatus(nil), 100*time.Millisecond)
	rec.ObserveStage("plan", StageStatus(errors.New("boom")), 50*time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(rec.stageDuration))
}

func TestSetQueueDepthPublishesEveryState(t *testing.T) {
	rec := NewPrometheusRecorder()

	rec.SetQueueDepth(4, 2, 1, 0)

	assert.Equal(t, float64(4), testutil.ToFloat64(rec.queueDepth.WithLabelValues("ready")))
	assert.Equal(t, float64(2), testutil.ToFloat64(rec.queueDepth.WithLabelValues("inflight")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.queueDepth.WithLabelValues("delayed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(rec.queueDepth.WithLabelValues("dead")))
}

func TestHandlerServesScrape(t *testing.T) {
	rec := NewPrometheusRecorder()
	rec.AddScenes(3)
	rec.ObserveRequest("POST", "/api/v1/stories", 202, 5*time.Millisecond)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec.Handler().ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "storyloom_scenes_generated_total 3")
	assert.Contains(t, body, `storyloom_http_requests_total{method="POST",route="/api/v1/stories",status="202"} 1`)
}

func TestNopDiscardsEverything(t *testing.T) {
	rec := Nop()
	rec.ObserveStory("completed", time.Second)
	rec.ObserveStage("image", "error", time.Second)
	rec.AddScenes(1)
	rec.SetQueueDepth(1, 1, 1, 1)
	rec.ObserveRequest("GET", "/healthz", 200, time.Millisecond)
}
