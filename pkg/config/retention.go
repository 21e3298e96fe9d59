package config

import "time"

// RetentionConfig controls the background cleanup loop.
type RetentionConfig struct {
	// StoryRetentionDays is how many days to keep terminal stories
	// (completed and failed) before deleting them and their scenes.
	StoryRetentionDays int `yaml:"story_retention_days"`

	// DeadLetterKeep is how many dead-lettered job IDs the broker keeps
	// for inspection; older entries and their payloads are trimmed.
	DeadLetterKeep int64 `yaml:"dead_letter_keep"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		StoryRetentionDays: 90,
		DeadLetterKeep:     100,
		CleanupInterval:    12 * time.Hour,
	}
}
