package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/storyloom/storyloom/pkg/metrics"
	"github.com/storyloom/storyloom/pkg/models"
	"github.com/storyloom/storyloom/pkg/prompt"
	"github.com/storyloom/storyloom/pkg/providers"
	"github.com/storyloom/storyloom/pkg/storage"
	"github.com/storyloom/storyloom/pkg/store"
)

// Executor drives one story delivery end to end: plan, shared art direction,
// scene fan-out, persistence. Progress is written as it happens (the plan
// onto the story row, each finished scene as its own row), so a redelivery
// resumes from whatever already landed instead of regenerating it.
type Executor struct {
	stories          StoryStore
	uploader         storage.Uploader
	providers        *providers.Set
	retry            providers.RetryPolicy
	sceneParallelism int
	metrics          metrics.Recorder
}

// NewExecutor creates the pipeline executor. sceneParallelism caps how many
// scenes of one story render concurrently.
func NewExecutor(stories StoryStore, uploader storage.Uploader, set *providers.Set, retry providers.RetryPolicy, sceneParallelism int) *Executor {
	if stories == nil {
		panic("stories is required")
	}
	if uploader == nil {
		panic("uploader is required")
	}
	if set == nil {
		panic("provider set is required")
	}
	if sceneParallelism < 1 {
		sceneParallelism = 1
	}
	return &Executor{
		stories:          stories,
		uploader:         uploader,
		providers:        set,
		retry:            retry,
		sceneParallelism: sceneParallelism,
		metrics:          metrics.Nop(),
	}
}

// WithMetrics replaces the no-op recorder. Returns the executor for chaining.
func (e *Executor) WithMetrics(rec metrics.Recorder) *Executor {
	if rec != nil {
		e.metrics = rec
	}
	return e
}

// stageError tags a failure with the pipeline stage that produced it, so the
// terminal error message names where the story broke.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// splitStage recovers the stage tag from an error chain.
func splitStage(err error) (string, error) {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage, se.err
	}
	return "", err
}

// Execute runs the pipeline for one delivery.
func (e *Executor) Execute(ctx context.Context, story *models.Story, env *models.Envelope) *ExecutionResult {
	log := slog.With("story_id", story.StoryID, "delivery", env.Attempt)

	// 1. Plan. A redelivered story reuses the persisted plan so the scene
	//    structure stays stable across deliveries.
	plan := story.StoryMetadata
	if plan == nil {
		p, res := e.generatePlan(ctx, env)
		if res != nil {
			return res
		}
		if err := e.stories.SetPlan(ctx, story.StoryID, p); err != nil {
			return &ExecutionResult{Stage: "plan", Err: fmt.Errorf("persisting plan: %w", err)}
		}
		plan = p
		log.InfoContext(ctx, "Story plan persisted",
			"title", plan.Title, "scenes", len(plan.Scenes), "characters", len(plan.Characters))
	} else {
		log.InfoContext(ctx, "Reusing persisted story plan", "scenes", len(plan.Scenes))
	}

	// 2. Shared art direction: the character profile and the base style
	//    depend only on the plan and run in parallel.
	profile, style, res := e.generateDirection(ctx, plan, env.Style)
	if res != nil {
		return res
	}

	// 3. Resume point: scenes persisted by an earlier delivery are final and
	//    are never regenerated.
	existing, err := e.stories.ListScenes(ctx, story.StoryID)
	if err != nil {
		return &ExecutionResult{Stage: "scenes", Err: fmt.Errorf("listing persisted scenes: %w", err)}
	}
	done := make(map[int]bool, len(existing))
	for _, s := range existing {
		if s.HasArtifacts() {
			done[s.Sequence] = true
		}
	}
	if len(done) > 0 {
		log.InfoContext(ctx, "Resuming story",
			"persisted_scenes", len(done), "total_scenes", len(plan.Scenes))
	}

	// 4. Scene fan-out. A plain group, not a derived context: one scene
	//    failing must not cancel its siblings, so every scene that can
	//    finish is persisted before the delivery retries.
	grp := new(errgroup.Group)
	grp.SetLimit(e.sceneParallelism)
	for i := range plan.Scenes {
		planned := &plan.Scenes[i]
		if done[planned.Sequence] {
			continue
		}
		grp.Go(func() error {
			return e.processScene(ctx, story.StoryID, plan, profile, style, planned)
		})
	}
	if err := grp.Wait(); err != nil {
		stage, cause := splitStage(err)
		return &ExecutionResult{Stage: stage, Err: cause}
	}

	return &ExecutionResult{Status: models.StatusCompleted}
}

// generatePlan asks the text model for the story plan and validates it.
// Planning is the one stage where a non-retriable upstream verdict fails the
// story outright: without a plan there is nothing to resume, and redelivering
// the same prompt would keep producing the same rejection.
func (e *Executor) generatePlan(ctx context.Context, env *models.Envelope) (*models.StoryPlan, *ExecutionResult) {
	var plan *models.StoryPlan
	start := time.Now()
	err := e.retry.Do(ctx, "story plan", func(ctx context.Context) error {
		raw, err := e.providers.Text.GenerateText(ctx, prompt.BuildPlanPrompt(env.Title, env.Prompt, env.SceneCount))
		if err != nil {
			return err
		}
		p, err := prompt.ParseStoryPlan(raw, env.SceneCount)
		if err != nil {
			return err
		}
		plan = p
		return nil
	})
	e.metrics.ObserveStage("plan", metrics.StageStatus(err), time.Since(start))
	if err == nil {
		return plan, nil
	}
	if providers.IsBadRequest(err) || providers.IsMalformed(err) {
		return nil, &ExecutionResult{Status: models.StatusFailed, Stage: "plan", Err: err}
	}
	return nil, &ExecutionResult{Stage: "plan", Err: err}
}

// generateDirection produces the visual profile and the base style from the
// plan, both halves in parallel.
func (e *Executor) generateDirection(ctx context.Context, plan *models.StoryPlan, styleHint string) (*models.VisualProfile, *models.BaseStyle, *ExecutionResult) {
	var (
		profile *models.VisualProfile
		style   *models.BaseStyle
	)

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		start := time.Now()
		err := e.retry.Do(gctx, "visual profile", func(ctx context.Context) error {
			raw, err := e.providers.Text.GenerateText(ctx, prompt.BuildVisualProfilePrompt(plan))
			if err != nil {
				return err
			}
			p, err := prompt.ParseVisualProfile(raw)
			if err != nil {
				return err
			}
			profile = p
			return nil
		})
		e.metrics.ObserveStage("profile", metrics.StageStatus(err), time.Since(start))
		if err != nil {
			return &stageError{stage: "profile", err: err}
		}
		return nil
	})
	grp.Go(func() error {
		start := time.Now()
		err := e.retry.Do(gctx, "base style", func(ctx context.Context) error {
			raw, err := e.providers.Text.GenerateText(ctx, prompt.BuildBaseStylePrompt(plan, styleHint))
			if err != nil {
				return err
			}
			s, err := prompt.ParseBaseStyle(raw)
			if err != nil {
				return err
			}
			style = s
			return nil
		})
		e.metrics.ObserveStage("style", metrics.StageStatus(err), time.Since(start))
		if err != nil {
			return &stageError{stage: "style", err: err}
		}
		return nil
	})
	if err := grp.Wait(); err != nil {
		stage, cause := splitStage(err)
		return nil, nil, &ExecutionResult{Stage: stage, Err: cause}
	}
	return profile, style, nil
}

// processScene renders one scene end to end. The illustration leg (moment,
// compose, render, upload) and the narration leg (synthesize, upload) run in
// parallel; the scene row is inserted only once both artifact URLs exist, so
// a persisted scene always means a finished scene.
func (e *Executor) processScene(ctx context.Context, storyID string, plan *models.StoryPlan, profile *models.VisualProfile, style *models.BaseStyle, planned *models.PlannedScene) error {
	seq := planned.Sequence

	var (
		imagePrompt string
		imageURL    string
		audioURL    string
	)

	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		var moment *models.SceneMoment
		start := time.Now()
		err := e.retry.Do(gctx, fmt.Sprintf("scene %d moment", seq), func(ctx context.Context) error {
			raw, err := e.providers.Text.GenerateText(ctx, prompt.BuildSceneMomentPrompt(plan, seq, profile, style))
			if err != nil {
				return err
			}
			m, err := prompt.ParseSceneMoment(raw)
			if err != nil {
				return err
			}
			moment = m
			return nil
		})
		e.metrics.ObserveStage("moment", metrics.StageStatus(err), time.Since(start))
		if err != nil {
			return &stageError{stage: fmt.Sprintf("scene_%d:moment", seq), err: err}
		}

		imagePrompt = prompt.ComposeImagePrompt(style, profile, planned, moment)

		var image []byte
		start = time.Now()
		err = e.retry.Do(gctx, fmt.Sprintf("scene %d image", seq), func(ctx context.Context) error {
			data, err := e.providers.Image.GenerateImage(ctx, imagePrompt)
			if err != nil {
				return err
			}
			image = data
			return nil
		})
		e.metrics.ObserveStage("image", metrics.StageStatus(err), time.Since(start))
		if err != nil {
			return &stageError{stage: fmt.Sprintf("scene_%d:image", seq), err: err}
		}

		start = time.Now()
		url, err := e.uploader.UploadImage(gctx, storyID, seq, image)
		e.metrics.ObserveStage("image_upload", metrics.StageStatus(err), time.Since(start))
		if err != nil {
			return &stageError{stage: fmt.Sprintf("scene_%d:image_upload", seq), err: err}
		}
		imageURL = url
		return nil
	})

	grp.Go(func() error {
		var speech []byte
		start := time.Now()
		err := e.retry.Do(gctx, fmt.Sprintf("scene %d audio", seq), func(ctx context.Context) error {
			data, err := e.providers.Audio.SynthesizeSpeech(ctx, planned.Text)
			if err != nil {
				return err
			}
			speech = data
			return nil
		})
		e.metrics.ObserveStage("audio", metrics.StageStatus(err), time.Since(start))
		if err != nil {
			return &stageError{stage: fmt.Sprintf("scene_%d:audio", seq), err: err}
		}

		start = time.Now()
		url, err := e.uploader.UploadAudio(gctx, storyID, seq, speech)
		e.metrics.ObserveStage("audio_upload", metrics.StageStatus(err), time.Since(start))
		if err != nil {
			return &stageError{stage: fmt.Sprintf("scene_%d:audio_upload", seq), err: err}
		}
		audioURL = url
		return nil
	})

	if err := grp.Wait(); err != nil {
		return err
	}

	_, err := e.stories.InsertScene(ctx, &models.Scene{
		SceneID:     uuid.New().String(),
		StoryID:     storyID,
		Sequence:    seq,
		Title:       planned.Title,
		Text:        planned.Text,
		ImagePrompt: imagePrompt,
		ImageURL:    imageURL,
		AudioURL:    audioURL,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateScene) {
			// A twin delivery got here first. Uploads are idempotent, so the
			// persisted row already points at equivalent artifacts.
			slog.InfoContext(ctx, "Scene already persisted", "story_id", storyID, "sequence", seq)
			return nil
		}
		return &stageError{stage: fmt.Sprintf("scene_%d:persist", seq), err: err}
	}

	e.metrics.AddScenes(1)
	slog.InfoContext(ctx, "Scene persisted",
		"story_id", storyID,
		"sequence", seq,
		"image_url", imageURL,
		"audio_url", audioURL)
	return nil
}
