package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/storyloom/storyloom/pkg/broker"
	"github.com/storyloom/storyloom/pkg/config"
	"github.com/storyloom/storyloom/pkg/metrics"
	"github.com/storyloom/storyloom/pkg/models"
	"github.com/storyloom/storyloom/pkg/store"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker is a single queue worker that leases and processes story jobs.
type Worker struct {
	id       string
	podID    string
	stories  StoryStore
	jobs     JobBroker
	config   *config.QueueConfig
	executor StoryExecutor
	pool     StoryRegistry
	metrics  metrics.Recorder
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu               sync.RWMutex
	status           WorkerStatus
	currentStoryID   string
	storiesProcessed int
	lastActivity     time.Time
}

// StoryRegistry is the subset of WorkerPool used by Worker to expose
// in-flight stories for drain handling.
type StoryRegistry interface {
	RegisterStory(storyID string, cancel context.CancelFunc)
	UnregisterStory(storyID string)
}

// NewWorker creates a new queue worker.
func NewWorker(id, podID string, stories StoryStore, jobs JobBroker, cfg *config.QueueConfig, executor StoryExecutor, pool StoryRegistry) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		stories:      stories,
		jobs:         jobs,
		config:       cfg,
		executor:     executor,
		pool:         pool,
		metrics:      metrics.Nop(),
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish its current
// job. It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:               w.id,
		Status:           string(w.status),
		CurrentStoryID:   w.currentStoryID,
		StoriesProcessed: w.storiesProcessed,
		LastActivity:     w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, broker.ErrNoJobs) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing story job", "error", err)
				w.sleep(time.Second) // Brief backoff on error
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess leases the next job, claims its story and runs the pipeline.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	// 1. Lease the next job. The envelope stays invisible to other workers
	//    until it is settled or the visibility timeout lapses.
	env, err := w.jobs.Dequeue(ctx)
	if err != nil {
		return err
	}
	started := time.Now()

	log := slog.With("story_id", env.StoryID, "worker_id", w.id, "delivery", env.Attempt)
	log.Info("Story job leased")

	// 2. Terminal guard: a redelivered job whose story already finished is
	//    settled without touching providers again.
	story, err := w.stories.Get(ctx, env.StoryID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("Dropping job for unknown story")
			return w.jobs.Ack(ctx, env.StoryID)
		}
		// Leave the job leased; it redelivers once the lease expires.
		return fmt.Errorf("loading story %s: %w", env.StoryID, err)
	}
	if story.Status.IsTerminal() {
		log.Info("Story already terminal, settling job", "status", story.Status)
		return w.jobs.Ack(ctx, env.StoryID)
	}

	// 3. Claim the row. A fresh foreign claim means a previous delivery is
	//    still being worked; park the job and let the holder finish or go
	//    stale.
	claimed, err := w.stories.Claim(ctx, env.StoryID, w.id, w.config.StaleClaimThreshold)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyClaimed):
			log.Info("Story held by another worker, parking job")
			return w.jobs.Nack(ctx, env.StoryID, w.config.RequeueDelay)
		case errors.Is(err, store.ErrInvalidTransition):
			// Reached a terminal status between the guard and the claim.
			log.Info("Story finished before claim, settling job")
			return w.jobs.Ack(ctx, env.StoryID)
		default:
			return fmt.Errorf("claiming story %s: %w", env.StoryID, err)
		}
	}

	w.setStatus(WorkerStatusWorking, env.StoryID)
	defer w.setStatus(WorkerStatusIdle, "")

	// 4. Processing budget: a fixed share of the lease, so the job settles
	//    or stops well before the broker could hand it to someone else.
	jobCtx, cancelJob := context.WithTimeout(ctx, w.config.JobDeadline())
	defer cancelJob()

	w.pool.RegisterStory(env.StoryID, cancelJob)
	defer w.pool.UnregisterStory(env.StoryID)

	// 5. Heartbeat the claim and renew the lease while the pipeline runs.
	heartbeatCtx, cancelHeartbeat := context.WithCancel(jobCtx)
	defer cancelHeartbeat()
	go w.runHeartbeat(heartbeatCtx, env.StoryID, cancelJob)

	// 6. Run the pipeline.
	result := w.executor.Execute(jobCtx, claimed, env)
	cancelHeartbeat()

	if result == nil {
		result = &ExecutionResult{Stage: "executor", Err: errors.New("executor returned nil result")}
	}

	// 7. Settle.
	return w.settle(jobCtx, log, env, claimed, result, started)
}

// settle turns an execution result into status writes and an ack or nack.
// It runs on a fresh context: jobCtx may already be cancelled or past its
// deadline, and terminal writes must still land.
func (w *Worker) settle(jobCtx context.Context, log *slog.Logger, env *models.Envelope, story *models.Story, result *ExecutionResult, started time.Time) error {
	ctx := context.Background()

	switch result.Status {
	case models.StatusCompleted:
		if err := w.stories.SetStatus(ctx, env.StoryID, models.StatusCompleted, ""); err != nil {
			log.Error("Failed to mark story completed", "error", err)
			// Leave the job leased: the redelivery finds every scene done,
			// re-runs this write and acks.
			return err
		}
		w.bumpProcessed()
		w.metrics.ObserveStory("completed", time.Since(started))
		log.Info("Story completed")
		return w.jobs.Ack(ctx, env.StoryID)

	case models.StatusFailed:
		return w.failAndSettle(ctx, log, env.StoryID, result, started)
	}

	// Retriable failure. A delivery cut short by its deadline or a shutdown
	// is neither acked nor nacked: the lease expires on its own and the
	// redelivery resumes from the persisted scenes without burning an
	// attempt.
	if jobCtx.Err() != nil {
		w.metrics.ObserveStory("interrupted", time.Since(started))
		log.Warn("Delivery interrupted, leaving job leased",
			"stage", result.Stage, "cause", jobCtx.Err(), "error", result.Err)
		return nil
	}

	attempts := max(env.Attempt, story.Attempts)
	if attempts >= w.config.MaxAttempts {
		log.Warn("Delivery budget exhausted", "stage", result.Stage, "attempts", attempts)
		return w.failAndSettle(ctx, log, env.StoryID, result, started)
	}

	w.metrics.ObserveStory("requeued", time.Since(started))
	log.Warn("Stage failed, requeueing for another delivery",
		"stage", result.Stage,
		"attempts", attempts,
		"max_attempts", w.config.MaxAttempts,
		"error", result.Err)
	return w.jobs.Nack(ctx, env.StoryID, w.config.RequeueDelay)
}

// failAndSettle records the terminal failure and acks the job. When the
// status write fails the job stays leased so a redelivery can retry the
// write; acking first would strand the story in processing forever.
func (w *Worker) failAndSettle(ctx context.Context, log *slog.Logger, storyID string, result *ExecutionResult, started time.Time) error {
	if err := w.stories.SetStatus(ctx, storyID, models.StatusFailed, result.ErrorMessage()); err != nil {
		log.Error("Failed to mark story failed", "stage", result.Stage, "error", err)
		return err
	}
	w.bumpProcessed()
	w.metrics.ObserveStory("failed", time.Since(started))
	log.Info("Story failed", "stage", result.Stage, "error", result.Err)
	return w.jobs.Ack(ctx, storyID)
}

// runHeartbeat re-stamps the DB claim and renews the broker lease while a
// story is processing. Losing either one cancels the job: the story now
// belongs to someone else and further provider spend is duplicate work.
func (w *Worker) runHeartbeat(ctx context.Context, storyID string, cancelJob context.CancelFunc) {
	ticker := time.NewTicker(w.config.EffectiveHeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.stories.Heartbeat(ctx, storyID, w.id); err != nil {
				if errors.Is(err, store.ErrAlreadyClaimed) {
					slog.Warn("Claim taken over, cancelling job",
						"story_id", storyID, "worker_id", w.id)
					cancelJob()
					return
				}
				slog.Warn("Heartbeat update failed", "story_id", storyID, "error", err)
			}
			if err := w.jobs.Renew(ctx, storyID); err != nil {
				if errors.Is(err, broker.ErrNotInflight) {
					slog.Warn("Broker lease lost, cancelling job",
						"story_id", storyID, "worker_id", w.id)
					cancelJob()
					return
				}
				slog.Warn("Lease renewal failed", "story_id", storyID, "error", err)
			}
		}
	}
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, storyID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentStoryID = storyID
	w.lastActivity = time.Now()
}

func (w *Worker) bumpProcessed() {
	w.mu.Lock()
	w.storiesProcessed++
	w.mu.Unlock()
}
