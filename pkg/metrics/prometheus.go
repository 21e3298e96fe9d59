package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storyloom"

// PrometheusRecorder implements Recorder on a private registry so tests can
// run recorders side by side without global-state collisions.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	storiesTotal    *prometheus.CounterVec
	storyDuration   *prometheus.HistogramVec
	stageDuration   *prometheus.HistogramVec
	scenesTotal     prometheus.Counter
	queueDepth      *prometheus.GaugeVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder with all collectors registered,
// plus the standard Go runtime and process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	p := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		storiesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stories_total",
				Help:      "Total settled story deliveries by outcome",
			},
			[]string{"status"},
		),
		storyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "story_duration_seconds",
				Help:      "Wall time of one story delivery, dequeue to settlement",
				Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of one generation stage including retries",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage", "status"},
		),
		scenesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scenes_generated_total",
				Help:      "Scenes persisted with both image and audio artifacts",
			},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Jobs in the broker by state",
			},
			[]string{"state"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "API requests by route and response code",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "API request latency by route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	p.registry.MustRegister(
		p.storiesTotal,
		p.storyDuration,
		p.stageDuration,
		p.scenesTotal,
		p.queueDepth,
		p.requestsTotal,
		p.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// Registry returns the underlying registry, for registering extra collectors.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns the scrape endpoint handler for this recorder's registry.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusRecorder) ObserveStory(status string, duration time.Duration) {
	p.storiesTotal.WithLabelValues(status).Inc()
	p.storyDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) ObserveStage(stage, status string, duration time.Duration) {
	p.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) AddScenes(n int) {
	p.scenesTotal.Add(float64(n))
}

func (p *PrometheusRecorder) SetQueueDepth(ready, inflight, delayed, dead int64) {
	p.queueDepth.WithLabelValues("ready").Set(float64(ready))
	p.queueDepth.WithLabelValues("inflight").Set(float64(inflight))
	p.queueDepth.WithLabelValues("delayed").Set(float64(delayed))
	p.queueDepth.WithLabelValues("dead").Set(float64(dead))
}

func (p *PrometheusRecorder) ObserveRequest(method, route string, status int, duration time.Duration) {
	p.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
