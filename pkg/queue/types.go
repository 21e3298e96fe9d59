// Package queue runs the story worker pool: workers lease jobs from the
// broker, claim the story row, drive the generation pipeline and settle the
// job. Delivery is at-least-once, so everything downstream of a dequeue is
// written to be safely re-runnable.
package queue

import (
	"context"
	"time"

	"github.com/storyloom/storyloom/pkg/broker"
	"github.com/storyloom/storyloom/pkg/models"
)

// StoryStore is the slice of the repository the worker pool needs.
// *store.Stories satisfies it.
type StoryStore interface {
	Get(ctx context.Context, storyID string) (*models.Story, error)
	Claim(ctx context.Context, storyID, workerID string, staleAfter time.Duration) (*models.Story, error)
	Heartbeat(ctx context.Context, storyID, workerID string) error
	SetStatus(ctx context.Context, storyID string, next models.Status, errMsg string) error
	SetPlan(ctx context.Context, storyID string, plan *models.StoryPlan) error
	InsertScene(ctx context.Context, scene *models.Scene) (*models.Scene, error)
	ListScenes(ctx context.Context, storyID string) ([]*models.Scene, error)
}

// JobBroker is the slice of the queue broker the worker pool needs.
// *broker.Client satisfies it.
type JobBroker interface {
	Dequeue(ctx context.Context) (*models.Envelope, error)
	Ack(ctx context.Context, storyID string) error
	Nack(ctx context.Context, storyID string, delay time.Duration) error
	Renew(ctx context.Context, storyID string) error
	Reap(ctx context.Context) (int, error)
	Depth(ctx context.Context) (*broker.Depth, error)
}

// StoryExecutor drives one delivery of a story job.
//
// The executor owns the pipeline: planning, shared art direction, scene
// fan-out and scene persistence. It writes progress (plan, scene rows) as it
// goes, so a later delivery resumes instead of starting over. The worker owns
// everything around it: claiming, heartbeats, terminal status and ack/nack.
type StoryExecutor interface {
	Execute(ctx context.Context, story *models.Story, env *models.Envelope) *ExecutionResult
}

// ExecutionResult is the verdict of one delivery.
//
// Status is StatusCompleted or StatusFailed for terminal outcomes. A zero
// Status means the delivery failed but is worth retrying; the worker decides
// between a requeue and a terminal failure based on the attempt budget.
type ExecutionResult struct {
	Status models.Status
	Stage  string
	Err    error
}

// ErrorMessage renders the failure as "<stage>: <cause>" for the story row.
func (r *ExecutionResult) ErrorMessage() string {
	switch {
	case r.Err == nil:
		return r.Stage
	case r.Stage == "":
		return r.Err.Error()
	default:
		return r.Stage + ": " + r.Err.Error()
	}
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy       bool           `json:"is_healthy"`
	BrokerReachable bool           `json:"broker_reachable"`
	BrokerError     string         `json:"broker_error,omitempty"`
	PodID           string         `json:"pod_id"`
	ActiveWorkers   int            `json:"active_workers"`
	TotalWorkers    int            `json:"total_workers"`
	ReadyJobs       int64          `json:"ready_jobs"`
	InflightJobs    int64          `json:"inflight_jobs"`
	DelayedJobs     int64          `json:"delayed_jobs"`
	DeadJobs        int64          `json:"dead_jobs"`
	WorkerStats     []WorkerHealth `json:"worker_stats"`
	LastReap        time.Time      `json:"last_reap"`
	JobsReaped      int            `json:"jobs_reaped"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"` // "idle" or "working"
	CurrentStoryID   string    `json:"current_story_id,omitempty"`
	StoriesProcessed int       `json:"stories_processed"`
	LastActivity     time.Time `json:"last_activity"`
}
