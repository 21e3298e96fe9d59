package config

import (
	"fmt"
	"strings"
)

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}

	if err := v.validateProviders(); err != nil {
		return fmt.Errorf("provider validation failed: %w", err)
	}

	if err := v.validateStorage(); err != nil {
		return fmt.Errorf("storage validation failed: %w", err)
	}

	if err := v.validateRedis(); err != nil {
		return fmt.Errorf("redis validation failed: %w", err)
	}

	if err := v.validateDefaults(); err != nil {
		return fmt.Errorf("defaults validation failed: %w", err)
	}

	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateQueue() error {
	q := v.cfg.Queue
	if q == nil {
		return NewValidationError("queue", "", ErrMissingRequiredField)
	}
	if strings.TrimSpace(q.Name) == "" {
		return NewValidationError("queue", "name", ErrMissingRequiredField)
	}
	if q.JobParallelism < 1 {
		return NewValidationError("queue", "job_parallelism", fmt.Errorf("must be at least 1"))
	}
	if q.SceneParallelism < 1 {
		return NewValidationError("queue", "scene_parallelism", fmt.Errorf("must be at least 1"))
	}
	if q.MaxAttempts < 1 {
		return NewValidationError("queue", "max_attempts", fmt.Errorf("must be at least 1"))
	}
	if q.RequeueDelay < 0 {
		return NewValidationError("queue", "requeue_delay", fmt.Errorf("must be non-negative"))
	}
	if q.VisibilityTimeout <= 0 {
		return NewValidationError("queue", "visibility_timeout", fmt.Errorf("must be positive"))
	}
	if q.PollInterval <= 0 {
		return NewValidationError("queue", "poll_interval", fmt.Errorf("must be positive"))
	}
	if q.PollIntervalJitter < 0 {
		return NewValidationError("queue", "poll_interval_jitter", fmt.Errorf("must be non-negative"))
	}
	if q.PollIntervalJitter >= q.PollInterval {
		return NewValidationError("queue", "poll_interval_jitter",
			fmt.Errorf("must be less than poll_interval (%s)", q.PollInterval))
	}
	if q.HeartbeatInterval < 0 {
		return NewValidationError("queue", "heartbeat_interval", fmt.Errorf("must not be negative"))
	}
	if q.EffectiveHeartbeatInterval() >= q.VisibilityTimeout {
		return NewValidationError("queue", "heartbeat_interval",
			fmt.Errorf("must be shorter than visibility_timeout (%s)", q.VisibilityTimeout))
	}
	return nil
}

func (v *ConfigValidator) validateProviders() error {
	p := v.cfg.Providers
	if p == nil || p.Text == nil || p.Image == nil || p.Audio == nil {
		return NewValidationError("providers", "", ErrMissingRequiredField)
	}

	// Mock mode needs no upstream credentials or models.
	if p.Mock != nil && p.Mock.Enabled {
		return nil
	}

	if p.Text.Model == "" {
		return NewValidationError("providers", "text.model", ErrMissingRequiredField)
	}
	if p.Text.Timeout <= 0 {
		return NewValidationError("providers", "text.timeout", fmt.Errorf("must be positive"))
	}
	if p.Image.Model == "" {
		return NewValidationError("providers", "image.model", ErrMissingRequiredField)
	}
	if p.Image.Timeout <= 0 {
		return NewValidationError("providers", "image.timeout", fmt.Errorf("must be positive"))
	}
	if p.Image.Width < 64 || p.Image.Height < 64 {
		return NewValidationError("providers", "image.width/height", fmt.Errorf("must be at least 64px"))
	}
	if p.Audio.VoiceID == "" {
		return NewValidationError("providers", "audio.voice_id", ErrMissingRequiredField)
	}
	if p.Audio.Timeout <= 0 {
		return NewValidationError("providers", "audio.timeout", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *ConfigValidator) validateStorage() error {
	s := v.cfg.Storage
	if s == nil {
		return NewValidationError("storage", "", ErrMissingRequiredField)
	}
	if s.BucketImages == "" {
		return NewValidationError("storage", "bucket_images", ErrMissingRequiredField)
	}
	if s.BucketAudio == "" {
		return NewValidationError("storage", "bucket_audio", ErrMissingRequiredField)
	}
	// Endpoint may stay empty in mock runs: the in-memory uploader needs none.
	if s.Endpoint == "" && !v.cfg.MockEnabled() {
		return NewValidationError("storage", "endpoint", ErrMissingRequiredField)
	}
	return nil
}

func (v *ConfigValidator) validateRedis() error {
	r := v.cfg.Redis
	if r == nil {
		return NewValidationError("redis", "", ErrMissingRequiredField)
	}
	if r.Addr == "" {
		return NewValidationError("redis", "addr", ErrMissingRequiredField)
	}
	if r.DB < 0 {
		return NewValidationError("redis", "db", fmt.Errorf("must not be negative"))
	}
	return nil
}

func (v *ConfigValidator) validateDefaults() error {
	d := v.cfg.Defaults
	if d == nil {
		return NewValidationError("defaults", "", ErrMissingRequiredField)
	}
	if d.SceneCount < 1 || d.SceneCount > MaxSceneCount {
		return NewValidationError("defaults", "scene_count",
			fmt.Errorf("must be between 1 and %d", MaxSceneCount))
	}
	return nil
}

func (v *ConfigValidator) validateRetention() error {
	r := v.cfg.Retention
	if r == nil {
		return NewValidationError("retention", "", ErrMissingRequiredField)
	}
	if r.StoryRetentionDays < 1 {
		return NewValidationError("retention", "story_retention_days", fmt.Errorf("must be at least 1"))
	}
	if r.DeadLetterKeep < 0 {
		return NewValidationError("retention", "dead_letter_keep", fmt.Errorf("must be non-negative"))
	}
	if r.CleanupInterval <= 0 {
		return NewValidationError("retention", "cleanup_interval", fmt.Errorf("must be positive"))
	}
	return nil
}
