package models

import "time"

// Envelope is the broker job payload. It carries enough to drive the whole
// pipeline without a DB read, but the stories row stays the source of truth.
type Envelope struct {
	StoryID    string    `json:"story_id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title"`
	Prompt     string    `json:"prompt"`
	Style      string    `json:"style,omitempty"`
	SceneCount int       `json:"scene_count"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
