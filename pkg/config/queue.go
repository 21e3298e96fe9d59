package config

import "time"

// QueueConfig contains broker and worker pool configuration.
// These values control how story jobs are enqueued, leased, and processed.
type QueueConfig struct {
	// Name is the broker queue the dispatcher enqueues to and workers
	// dequeue from. All Redis keys for the queue derive from it.
	Name string `yaml:"name"`

	// JobParallelism is the number of worker goroutines per replica/pod.
	// Each worker independently dequeues and processes one story at a time.
	JobParallelism int `yaml:"job_parallelism"`

	// SceneParallelism is the per-job ceiling on scenes generated
	// concurrently. Scene work dominates provider spend, so this is the
	// main throughput/cost knob.
	SceneParallelism int `yaml:"scene_parallelism"`

	// VisibilityTimeout is the lease a dequeued job holds before the broker
	// considers the worker dead and redelivers. Workers renew it while the
	// job runs.
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`

	// MaxAttempts is the delivery ceiling per story. Reaching it turns the
	// next failure terminal instead of redelivering.
	MaxAttempts int `yaml:"max_attempts"`

	// RequeueDelay is how long a nacked job stays parked before it becomes
	// eligible for redelivery.
	RequeueDelay time.Duration `yaml:"requeue_delay"`

	// PollInterval is the base interval workers wait between dequeue
	// attempts when the queue is empty.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// HeartbeatInterval is how often an active worker re-stamps the story
	// row and renews the broker lease. Derived from VisibilityTimeout/3
	// when unset.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// ReapInterval is how often the pool promotes expired leases and due
	// delayed jobs back onto the ready queue.
	ReapInterval time.Duration `yaml:"reap_interval"`

	// StaleClaimThreshold is how long a processing story can go without a
	// heartbeat before another worker may take over its claim.
	StaleClaimThreshold time.Duration `yaml:"stale_claim_threshold"`

	// GracefulShutdownTimeout is the max time to wait for in-flight jobs
	// to finish their current provider call during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		Name:                    "story_jobs",
		JobParallelism:          1,
		SceneParallelism:        3,
		VisibilityTimeout:       2 * time.Hour,
		MaxAttempts:             3,
		RequeueDelay:            30 * time.Second,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		HeartbeatInterval:       0, // derived from VisibilityTimeout/3
		ReapInterval:            15 * time.Second,
		StaleClaimThreshold:     10 * time.Minute,
		GracefulShutdownTimeout: 5 * time.Minute,
	}
}

// EffectiveHeartbeatInterval resolves the renewal cadence: the configured
// value when set, otherwise a third of the visibility timeout so a lease
// survives two missed renewals.
func (q *QueueConfig) EffectiveHeartbeatInterval() time.Duration {
	if q.HeartbeatInterval > 0 {
		return q.HeartbeatInterval
	}
	return q.VisibilityTimeout / 3
}

// JobDeadline is the per-delivery processing budget: 80% of the visibility
// timeout, leaving headroom to persist results and ack before the lease can
// lapse.
func (q *QueueConfig) JobDeadline() time.Duration {
	return q.VisibilityTimeout * 8 / 10
}
