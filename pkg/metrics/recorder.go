// Package metrics records the pipeline's operational metrics: story
// outcomes, per-stage generation latency, queue depth and API traffic.
package metrics

import "time"

// Recorder is the interface the worker pool, executor and API server record
// through. Production wiring uses PrometheusRecorder; tests and metrics-less
// deployments use Nop.
type Recorder interface {
	// ObserveStory records a settled delivery: the outcome label
	// (completed, failed, requeued, interrupted) and its wall time.
	ObserveStory(status string, duration time.Duration)

	// ObserveStage records one generation stage (plan, profile, style,
	// moment, image, audio, image_upload, audio_upload) with a
	// success/error status.
	ObserveStage(stage, status string, duration time.Duration)

	// AddScenes counts scenes persisted with both artifacts.
	AddScenes(n int)

	// SetQueueDepth publishes the broker's per-state job counts.
	SetQueueDepth(ready, inflight, delayed, dead int64)

	// ObserveRequest records one API request against its route template.
	ObserveRequest(method, route string, status int, duration time.Duration)
}

// NopRecorder discards all observations.
type NopRecorder struct{}

// Nop returns a recorder that discards all observations.
func Nop() Recorder { return NopRecorder{} }

func (NopRecorder) ObserveStory(string, time.Duration) {}

func (NopRecorder) ObserveStage(string, string, time.Duration) {}

func (NopRecorder) AddScenes(int) {}

func (NopRecorder) SetQueueDepth(int64, int64, int64, int64) {}

func (NopRecorder) ObserveRequest(string, string, int, time.Duration) {}

// StageStatus maps a stage error to the status label convention used by
// ObserveStage.
func StageStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
