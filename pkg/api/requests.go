package api

// SubmitStoryRequest is the HTTP request body for POST /api/v1/stories.
type SubmitStoryRequest struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
	UserID string `json:"user_id,omitempty"`

	// Style is an optional art direction hint ("watercolor", "pixar", ...).
	Style string `json:"style,omitempty"`

	// NumScenes is the requested scene count; 0 means the server default.
	NumScenes int `json:"num_scenes,omitempty"`
}
