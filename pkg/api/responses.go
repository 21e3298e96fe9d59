package api

// SubmitStoryResponse is returned by POST /api/v1/stories.
type SubmitStoryResponse struct {
	StoryID string `json:"story_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StoryStatusResponse is returned by GET /api/v1/stories/:id/status.
type StoryStatusResponse struct {
	StoryID string `json:"story_id"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// HealthCheck is the verdict for one dependency.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
