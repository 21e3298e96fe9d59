package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyloom/storyloom/pkg/config"
)

type recordingPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
	err     error
}

func (p *recordingPruner) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.deleted, p.err
}

func (p *recordingPruner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

type recordingTrimmer struct {
	mu      sync.Mutex
	keeps   []int64
	trimmed int
	err     error
}

func (t *recordingTrimmer) TrimDead(_ context.Context, keep int64) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keeps = append(t.keeps, keep)
	return t.trimmed, t.err
}

func (t *recordingTrimmer) calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.keeps)
}

func retentionConfig() *config.RetentionConfig {
	return &config.RetentionConfig{
		StoryRetentionDays: 90,
		DeadLetterKeep:     100,
		CleanupInterval:    1 * time.Hour,
	}
}

func TestService_PrunesWithRetentionCutoff(t *testing.T) {
	pruner := &recordingPruner{deleted: 3}
	trimmer := &recordingTrimmer{}

	svc := NewService(retentionConfig(), pruner, trimmer)
	svc.runAll(context.Background())

	require.Equal(t, 1, pruner.calls())

	want := time.Now().AddDate(0, 0, -90)
	assert.WithinDuration(t, want, pruner.cutoffs[0], time.Minute)
}

func TestService_TrimsDeadLettersToKeepBudget(t *testing.T) {
	pruner := &recordingPruner{}
	trimmer := &recordingTrimmer{trimmed: 7}

	svc := NewService(retentionConfig(), pruner, trimmer)
	svc.runAll(context.Background())

	require.Equal(t, 1, trimmer.calls())
	assert.Equal(t, int64(100), trimmer.keeps[0])
}

func TestService_PruneFailureDoesNotSkipTrim(t *testing.T) {
	pruner := &recordingPruner{err: errors.New("connection refused")}
	trimmer := &recordingTrimmer{}

	svc := NewService(retentionConfig(), pruner, trimmer)
	svc.runAll(context.Background())

	assert.Equal(t, 1, pruner.calls())
	assert.Equal(t, 1, trimmer.calls(), "trim should run even when pruning fails")
}

func TestService_StartStop(t *testing.T) {
	pruner := &recordingPruner{}
	trimmer := &recordingTrimmer{}

	cfg := retentionConfig()
	cfg.CleanupInterval = 10 * time.Millisecond

	svc := NewService(cfg, pruner, trimmer)
	svc.Start(context.Background())

	// The loop runs once immediately, then on the ticker.
	require.Eventually(t, func() bool {
		return pruner.calls() >= 2 && trimmer.calls() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	svc.Stop()
	after := pruner.calls()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, pruner.calls(), "no runs after Stop")

	// Stop again is a no-op.
	svc.Stop()
}

func TestService_StartTwiceIsNoOp(t *testing.T) {
	pruner := &recordingPruner{}
	trimmer := &recordingTrimmer{}

	svc := NewService(retentionConfig(), pruner, trimmer)
	svc.Start(context.Background())
	svc.Start(context.Background())
	svc.Stop()

	assert.Equal(t, 1, pruner.calls())
}
