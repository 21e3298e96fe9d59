package models

import "time"

// Story is a generation job and its durable result header.
type Story struct {
	StoryID       string     `json:"story_id"`
	Title         string     `json:"title"`
	Prompt        string     `json:"prompt"`
	UserID        string     `json:"user_id"`
	Status        Status     `json:"status"`
	Error         string     `json:"error,omitempty"`
	StoryMetadata *StoryPlan `json:"story_metadata,omitempty"`
	ClaimedBy     string     `json:"claimed_by,omitempty"`
	Attempts      int        `json:"attempts"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Scene is one ordered unit of a completed story: narrative text plus the
// uploaded illustration and narration artifacts.
type Scene struct {
	SceneID     string    `json:"scene_id"`
	StoryID     string    `json:"story_id"`
	Sequence    int       `json:"sequence"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	ImagePrompt string    `json:"image_prompt"`
	ImageURL    string    `json:"image_url,omitempty"`
	AudioURL    string    `json:"audio_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasArtifacts reports whether both the image and audio uploads are recorded.
// A scene with both URLs is final and is never regenerated on redelivery.
func (s *Scene) HasArtifacts() bool {
	return s.ImageURL != "" && s.AudioURL != ""
}

// StoryFilters contains filtering options for listing stories
type StoryFilters struct {
	Status Status `json:"status,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// StoryListResponse contains a paginated story list
type StoryListResponse struct {
	Stories    []*Story `json:"stories"`
	TotalCount int      `json:"total_count"`
	Limit      int      `json:"limit"`
	Offset     int      `json:"offset"`
}

// StoryDetail is a story joined with its ordered scenes, the shape returned
// to polling clients.
type StoryDetail struct {
	*Story
	Scenes []*Scene `json:"scenes"`
}
