// Package broker is the durable job queue between story submission and the
// worker pool. It is built on Redis with visibility-timeout semantics: a
// dequeued job stays invisible while a worker holds it, and reappears for
// redelivery when the worker acks too late or not at all. Delivery is
// at-least-once; consumers must be idempotent.
//
// Key layout for a queue named q:
//
//	q:ready       LIST   story IDs awaiting delivery (FIFO)
//	q:inflight    ZSET   story ID -> visibility deadline (unix ms)
//	q:delayed     ZSET   story ID -> ready-at time (unix ms)
//	q:payload:<id> STRING envelope JSON
//	q:dead        LIST   story IDs that exhausted their delivery budget
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storyloom/storyloom/pkg/config"
	"github.com/storyloom/storyloom/pkg/models"
)

var (
	// ErrNoJobs means the ready queue is empty.
	ErrNoJobs = errors.New("no jobs ready")

	// ErrNotInflight means the job is no longer held by this consumer; its
	// visibility expired or another actor settled it.
	ErrNotInflight = errors.New("job is not inflight")
)

// dequeueScript promotes due delayed jobs, pops the oldest ready job, moves
// it inflight and fetches its envelope in one atomic step. ARGV[1] is now,
// ARGV[2] the visibility deadline, both unix milliseconds.
var dequeueScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', ARGV[1])
for _, id in ipairs(due) do
	redis.call('ZREM', KEYS[3], id)
	redis.call('RPUSH', KEYS[1], id)
end
local id = redis.call('LPOP', KEYS[1])
if not id then
	return false
end
redis.call('ZADD', KEYS[2], ARGV[2], id)
local payload = redis.call('GET', KEYS[4] .. id)
if not payload then
	redis.call('ZREM', KEYS[2], id)
	return false
end
return {id, payload}
`)

// reapScript returns every inflight job whose visibility deadline passed to
// the ready queue. ARGV[1] is now in unix milliseconds.
var reapScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(expired) do
	redis.call('ZREM', KEYS[2], id)
	redis.call('RPUSH', KEYS[1], id)
end
return #expired
`)

// trimDeadScript deletes the oldest dead-list entries past the keep budget
// (ARGV[1]) together with their payload keys (prefix KEYS[2]).
var trimDeadScript = redis.NewScript(`
local len = redis.call('LLEN', KEYS[1])
local excess = len - tonumber(ARGV[1])
if excess <= 0 then
	return 0
end
local old = redis.call('LRANGE', KEYS[1], 0, excess - 1)
for _, id in ipairs(old) do
	redis.call('DEL', KEYS[2] .. id)
end
redis.call('LTRIM', KEYS[1], excess, -1)
return excess
`)

// Client talks to one named queue.
type Client struct {
	rdb         *redis.Client
	name        string
	visibility  time.Duration
	maxAttempts int
}

// NewRedis builds the go-redis client from configuration, resolving the
// password from the configured environment variable.
func NewRedis(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: os.Getenv(cfg.PasswordEnv),
		DB:       cfg.DB,
	})
}

// NewClient constructs a queue client.
func NewClient(rdb *redis.Client, cfg *config.QueueConfig) *Client {
	return &Client{
		rdb:         rdb,
		name:        cfg.Name,
		visibility:  cfg.VisibilityTimeout,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Ping verifies the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) readyKey() string    { return c.name + ":ready" }
func (c *Client) inflightKey() string { return c.name + ":inflight" }
func (c *Client) delayedKey() string  { return c.name + ":delayed" }
func (c *Client) deadKey() string     { return c.name + ":dead" }
func (c *Client) payloadPrefix() string {
	return c.name + ":payload:"
}
func (c *Client) payloadKey(storyID string) string {
	return c.payloadPrefix() + storyID
}

// Enqueue stores the envelope and makes the job deliverable.
func (c *Client) Enqueue(ctx context.Context, env *models.Envelope) error {
	if env.StoryID == "" {
		return errors.New("envelope has no story_id")
	}
	if env.Attempt < 1 {
		env.Attempt = 1
	}
	if env.EnqueuedAt.IsZero() {
		env.EnqueuedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, c.payloadKey(env.StoryID), payload, 0)
	pipe.RPush(ctx, c.readyKey(), env.StoryID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue story %s: %w", env.StoryID, err)
	}

	slog.InfoContext(ctx, "Enqueued story job",
		"story_id", env.StoryID,
		"attempt", env.Attempt,
		"queue", c.name)
	return nil
}

// Dequeue claims the oldest ready job for the configured visibility window.
// Returns ErrNoJobs when nothing is deliverable.
func (c *Client) Dequeue(ctx context.Context) (*models.Envelope, error) {
	now := time.Now()
	keys := []string{c.readyKey(), c.inflightKey(), c.delayedKey(), c.payloadPrefix()}
	args := []interface{}{now.UnixMilli(), now.Add(c.visibility).UnixMilli()}

	res, err := dequeueScript.Run(ctx, c.rdb, keys, args...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoJobs
		}
		return nil, fmt.Errorf("dequeue: %w", err)
	}

	pair, ok := res.([]interface{})
	if !ok || len(pair) != 2 {
		return nil, fmt.Errorf("dequeue: unexpected script result %T", res)
	}
	payload, _ := pair[1].(string)

	var env models.Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		storyID, _ := pair[0].(string)
		// The envelope is unreadable; settle it so it cannot wedge the queue.
		if ackErr := c.Ack(ctx, storyID); ackErr != nil {
			slog.ErrorContext(ctx, "Failed to drop corrupt envelope", "story_id", storyID, "error", ackErr)
		}
		return nil, fmt.Errorf("dequeue story %s: corrupt envelope: %w", storyID, err)
	}
	return &env, nil
}

// Ack settles a delivered job and deletes its envelope.
func (c *Client) Ack(ctx context.Context, storyID string) error {
	pipe := c.rdb.TxPipeline()
	pipe.ZRem(ctx, c.inflightKey(), storyID)
	pipe.Del(ctx, c.payloadKey(storyID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack story %s: %w", storyID, err)
	}
	return nil
}

// Nack returns a delivered job for redelivery after the given delay,
// incrementing its attempt counter. Jobs past the delivery budget land on
// the dead list instead; the worker is expected to have marked the story
// failed long before that backstop triggers.
func (c *Client) Nack(ctx context.Context, storyID string, delay time.Duration) error {
	payloadKey := c.payloadKey(storyID)

	data, err := c.rdb.Get(ctx, payloadKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Already settled; just release the inflight hold.
			return c.rdb.ZRem(ctx, c.inflightKey(), storyID).Err()
		}
		return fmt.Errorf("nack story %s: %w", storyID, err)
	}

	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("nack story %s: corrupt envelope: %w", storyID, err)
	}
	env.Attempt++

	payload, err := json.Marshal(&env)
	if err != nil {
		return fmt.Errorf("nack story %s: %w", storyID, err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.ZRem(ctx, c.inflightKey(), storyID)
	pipe.Set(ctx, payloadKey, payload, 0)
	switch {
	case env.Attempt > c.maxAttempts:
		pipe.RPush(ctx, c.deadKey(), storyID)
	case delay > 0:
		pipe.ZAdd(ctx, c.delayedKey(), redis.Z{
			Score:  float64(time.Now().Add(delay).UnixMilli()),
			Member: storyID,
		})
	default:
		pipe.RPush(ctx, c.readyKey(), storyID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("nack story %s: %w", storyID, err)
	}

	slog.InfoContext(ctx, "Returned story job for redelivery",
		"story_id", storyID,
		"attempt", env.Attempt,
		"delay", delay,
		"dead", env.Attempt > c.maxAttempts)
	return nil
}

// Renew extends the visibility deadline of an inflight job. Returns
// ErrNotInflight when the job is no longer held.
func (c *Client) Renew(ctx context.Context, storyID string) error {
	_, err := c.rdb.ZScore(ctx, c.inflightKey(), storyID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotInflight
		}
		return fmt.Errorf("renew story %s: %w", storyID, err)
	}

	deadline := float64(time.Now().Add(c.visibility).UnixMilli())
	if err := c.rdb.ZAdd(ctx, c.inflightKey(), redis.Z{Score: deadline, Member: storyID}).Err(); err != nil {
		return fmt.Errorf("renew story %s: %w", storyID, err)
	}
	return nil
}

// Reap returns expired inflight jobs to the ready queue so another worker
// can pick them up. Returns how many were recovered.
func (c *Client) Reap(ctx context.Context) (int, error) {
	keys := []string{c.readyKey(), c.inflightKey()}
	res, err := reapScript.Run(ctx, c.rdb, keys, time.Now().UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("reap: %w", err)
	}
	if res > 0 {
		slog.WarnContext(ctx, "Recovered expired inflight jobs", "count", res, "queue", c.name)
	}
	return res, nil
}

// TrimDead drops all but the newest keep entries from the dead list, along
// with their stored envelopes. Dead-lettered jobs exist only for inspection;
// without trimming their payloads would accumulate forever.
func (c *Client) TrimDead(ctx context.Context, keep int64) (int, error) {
	if keep < 0 {
		keep = 0
	}

	keys := []string{c.deadKey(), c.payloadPrefix()}
	res, err := trimDeadScript.Run(ctx, c.rdb, keys, keep).Int()
	if err != nil {
		return 0, fmt.Errorf("trim dead letters: %w", err)
	}
	if res > 0 {
		slog.InfoContext(ctx, "Trimmed dead-lettered jobs", "count", res, "queue", c.name)
	}
	return res, nil
}

// Depth describes the queue's backlog.
type Depth struct {
	Ready    int64 `json:"ready"`
	Inflight int64 `json:"inflight"`
	Delayed  int64 `json:"delayed"`
	Dead     int64 `json:"dead"`
}

// Depth reports the backlog in each queue section.
func (c *Client) Depth(ctx context.Context) (*Depth, error) {
	pipe := c.rdb.Pipeline()
	ready := pipe.LLen(ctx, c.readyKey())
	inflight := pipe.ZCard(ctx, c.inflightKey())
	delayed := pipe.ZCard(ctx, c.delayedKey())
	dead := pipe.LLen(ctx, c.deadKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("depth: %w", err)
	}
	return &Depth{
		Ready:    ready.Val(),
		Inflight: inflight.Val(),
		Delayed:  delayed.Val(),
		Dead:     dead.Val(),
	}, nil
}
