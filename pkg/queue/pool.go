package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storyloom/storyloom/pkg/config"
	"github.com/storyloom/storyloom/pkg/metrics"
)

// WorkerPool manages a pool of queue workers plus the background reaper that
// returns expired leases to the ready queue.
type WorkerPool struct {
	podID    string
	stories  StoryStore
	jobs     JobBroker
	config   *config.QueueConfig
	executor StoryExecutor
	workers  []*Worker
	metrics  metrics.Recorder
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// In-flight registry: story_id → job cancel function
	activeStories map[string]context.CancelFunc
	mu            sync.RWMutex
	started       bool

	// Reaper state
	reapMu     sync.Mutex
	lastReap   time.Time
	jobsReaped int
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(podID string, stories StoryStore, jobs JobBroker, cfg *config.QueueConfig, executor StoryExecutor) *WorkerPool {
	return &WorkerPool{
		podID:         podID,
		stories:       stories,
		jobs:          jobs,
		config:        cfg,
		executor:      executor,
		workers:       make([]*Worker, 0, cfg.JobParallelism),
		metrics:       metrics.Nop(),
		stopCh:        make(chan struct{}),
		activeStories: make(map[string]context.CancelFunc),
	}
}

// WithMetrics replaces the no-op recorder for the pool and the workers it
// will spawn. Must be called before Start.
func (p *WorkerPool) WithMetrics(rec metrics.Recorder) *WorkerPool {
	if rec != nil {
		p.metrics = rec
	}
	return p
}

// Start spawns worker goroutines and the lease reaper background task.
// It is safe to call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true

	slog.Info("Starting worker pool", "pod_id", p.podID, "workers", p.config.JobParallelism)

	for i := 0; i < p.config.JobParallelism; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.podID, p.stories, p.jobs, p.config, p.executor, p)
		worker.metrics = p.metrics
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runReaper(ctx)
	}()

	slog.Info("Worker pool started")
	return nil
}

// Stop drains the pool. Workers stop dequeuing immediately; in-flight
// stories get GracefulShutdownTimeout to finish, then their job contexts are
// cancelled. An interrupted story is neither acked nor nacked, so its lease
// expires on its own and another replica resumes it from the persisted
// scenes.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool", "pod_id", p.podID)

	active := p.activeStoryIDs()
	if len(active) > 0 {
		slog.Info("Waiting for in-flight stories to finish",
			"count", len(active),
			"story_ids", active)
	}

	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		for _, worker := range p.workers {
			worker.Stop()
		}
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.config.GracefulShutdownTimeout):
		slog.Warn("Drain deadline reached, cancelling in-flight stories",
			"pod_id", p.podID,
			"story_ids", p.activeStoryIDs())
		p.cancelActiveStories()
		<-done
	}

	slog.Info("Worker pool stopped")
}

// RegisterStory stores the job cancel function while a story is in flight.
func (p *WorkerPool) RegisterStory(storyID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeStories[storyID] = cancel
}

// UnregisterStory removes the cancel function when processing ends.
func (p *WorkerPool) UnregisterStory(storyID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeStories, storyID)
}

// cancelActiveStories cancels every registered in-flight job.
func (p *WorkerPool) cancelActiveStories() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, cancel := range p.activeStories {
		cancel()
	}
}

// runReaper periodically returns expired inflight leases to the ready queue,
// covering workers that died without settling their job.
func (p *WorkerPool) runReaper(ctx context.Context) {
	ticker := time.NewTicker(p.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			recovered, err := p.jobs.Reap(ctx)
			if err != nil {
				slog.Error("Lease reap failed", "pod_id", p.podID, "error", err)
				continue
			}
			p.reapMu.Lock()
			p.lastReap = time.Now()
			p.jobsReaped += recovered
			p.reapMu.Unlock()

			if depth, err := p.jobs.Depth(ctx); err == nil {
				p.metrics.SetQueueDepth(depth.Ready, depth.Inflight, depth.Delayed, depth.Dead)
			}
		}
	}
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	ctx := context.Background()

	depth, err := p.jobs.Depth(ctx)
	if err != nil {
		slog.Error("Failed to query queue depth for health check",
			"pod_id", p.podID,
			"error", err)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	// Broker errors affect health status: without the broker no jobs move.
	brokerHealthy := err == nil
	isHealthy := len(p.workers) > 0 && brokerHealthy

	p.reapMu.Lock()
	lastReap := p.lastReap
	jobsReaped := p.jobsReaped
	p.reapMu.Unlock()

	health := &PoolHealth{
		IsHealthy:       isHealthy,
		BrokerReachable: brokerHealthy,
		PodID:           p.podID,
		ActiveWorkers:   activeWorkers,
		TotalWorkers:    len(p.workers),
		WorkerStats:     workerStats,
		LastReap:        lastReap,
		JobsReaped:      jobsReaped,
	}
	if err != nil {
		health.BrokerError = fmt.Sprintf("queue depth query failed: %v", err)
	} else {
		health.ReadyJobs = depth.Ready
		health.InflightJobs = depth.Inflight
		health.DelayedJobs = depth.Delayed
		health.DeadJobs = depth.Dead
	}
	return health
}

// activeStoryIDs returns IDs of currently processing stories (for logging).
func (p *WorkerPool) activeStoryIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeStories))
	for id := range p.activeStories {
		ids = append(ids, id)
	}
	return ids
}
