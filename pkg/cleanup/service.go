// Package cleanup provides data retention for the story pipeline.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/storyloom/storyloom/pkg/config"
)

// StoryPruner deletes terminal stories past retention. *store.Stories
// satisfies it.
type StoryPruner interface {
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeadLetterTrimmer bounds the broker's dead-letter backlog. *broker.Client
// satisfies it.
type DeadLetterTrimmer interface {
	TrimDead(ctx context.Context, keep int64) (int, error)
}

// Service periodically enforces retention policies:
//   - Deletes terminal stories (and their scenes) past the retention window
//   - Trims the broker's dead-letter list to its keep budget
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config  *config.RetentionConfig
	stories StoryPruner
	jobs    DeadLetterTrimmer

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, stories StoryPruner, jobs DeadLetterTrimmer) *Service {
	return &Service{
		config:  cfg,
		stories: stories,
		jobs:    jobs,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"story_retention_days", s.config.StoryRetentionDays,
		"dead_letter_keep", s.config.DeadLetterKeep,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.pruneOldStories(ctx)
	s.trimDeadLetters(ctx)
}

func (s *Service) pruneOldStories(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.config.StoryRetentionDays)
	count, err := s.stories.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: story pruning failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: pruned old stories", "count", count)
	}
}

func (s *Service) trimDeadLetters(ctx context.Context) {
	count, err := s.jobs.TrimDead(ctx, s.config.DeadLetterKeep)
	if err != nil {
		slog.Error("Retention: dead-letter trim failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: trimmed dead-lettered jobs", "count", count)
	}
}
