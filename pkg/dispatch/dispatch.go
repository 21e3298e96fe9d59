// Package dispatch accepts story submissions: it persists the pending row,
// then enqueues the generation job. Create-then-enqueue means a client can
// poll the returned id immediately, and a lost response after a successful
// enqueue is harmless because the worker finds an existing pending row.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/storyloom/storyloom/pkg/config"
	"github.com/storyloom/storyloom/pkg/models"
	"github.com/storyloom/storyloom/pkg/store"
)

// StoryCreator is the slice of the repository the dispatcher needs.
type StoryCreator interface {
	Create(ctx context.Context, story *models.Story) (*models.Story, error)
	SetStatus(ctx context.Context, storyID string, next models.Status, errMsg string) error
}

// Enqueuer is the broker surface the dispatcher needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, env *models.Envelope) error
}

// SubmitStoryInput contains the domain-level data needed to start a story.
// Transformed from the HTTP request + headers by the handler.
type SubmitStoryInput struct {
	Title      string
	Prompt     string
	UserID     string
	Style      string // optional art direction hint
	SceneCount int    // 0 means use the configured default
}

// Dispatcher handles story submission and job creation.
type Dispatcher struct {
	stories  StoryCreator
	broker   Enqueuer
	defaults *config.Defaults
}

// New creates a Dispatcher.
func New(stories StoryCreator, broker Enqueuer, defaults *config.Defaults) *Dispatcher {
	if stories == nil {
		panic("dispatch.New: stories must not be nil")
	}
	if broker == nil {
		panic("dispatch.New: broker must not be nil")
	}
	if defaults == nil {
		panic("dispatch.New: defaults must not be nil")
	}
	return &Dispatcher{
		stories:  stories,
		broker:   broker,
		defaults: defaults,
	}
}

// Submit creates a pending story and enqueues its generation job, returning
// the persisted row. When the enqueue fails after the row was created, the
// story is marked failed with "enqueue_failed" so clients polling the id see
// a terminal state instead of an eternal pending.
func (d *Dispatcher) Submit(ctx context.Context, input SubmitStoryInput) (*models.Story, error) {
	if strings.TrimSpace(input.Prompt) == "" {
		return nil, store.NewValidationError("prompt", "prompt is required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, store.NewValidationError("title", "title is required")
	}
	if strings.TrimSpace(input.UserID) == "" {
		return nil, store.NewValidationError("user_id", "user_id is required")
	}

	sceneCount := input.SceneCount
	if sceneCount == 0 {
		sceneCount = d.defaults.SceneCount
	}
	if sceneCount < 1 || sceneCount > config.MaxSceneCount {
		return nil, store.NewValidationError("scene_count",
			fmt.Sprintf("must be between 1 and %d", config.MaxSceneCount))
	}

	style := input.Style
	if style == "" {
		style = d.defaults.Style
	}

	storyID := uuid.New().String()

	story, err := d.stories.Create(ctx, &models.Story{
		StoryID: storyID,
		Title:   input.Title,
		Prompt:  input.Prompt,
		UserID:  input.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create story: %w", err)
	}

	if err := d.broker.Enqueue(ctx, &models.Envelope{
		StoryID:    storyID,
		UserID:     input.UserID,
		Title:      input.Title,
		Prompt:     input.Prompt,
		Style:      style,
		SceneCount: sceneCount,
	}); err != nil {
		// Best effort: the row exists but no worker will ever see it, so
		// fail it in place. If even that write fails the story stays
		// pending and the error below still reaches the caller.
		if statusErr := d.stories.SetStatus(ctx, storyID, models.StatusFailed,
			fmt.Sprintf("enqueue_failed: %v", err)); statusErr != nil {
			slog.ErrorContext(ctx, "Failed to mark story failed after enqueue error",
				"story_id", storyID,
				"error", statusErr)
		}
		return nil, fmt.Errorf("failed to enqueue story %s: %w", storyID, err)
	}

	slog.InfoContext(ctx, "Story submitted",
		"story_id", storyID,
		"user_id", input.UserID,
		"scene_count", sceneCount)
	return story, nil
}
