package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/storyloom/storyloom/pkg/dispatch"
	"github.com/storyloom/storyloom/pkg/models"
)

// maxPromptBytes bounds the user premise; anything longer is an input error,
// not story material.
const maxPromptBytes = 4096

// maxTitleBytes bounds the story title.
const maxTitleBytes = 256

// submitStoryHandler handles POST /api/v1/stories.
// Creates a story in "pending" status, enqueues the generation job and
// returns immediately with the story_id for polling.
func (s *Server) submitStoryHandler(c *gin.Context) {
	// 1. Bind HTTP request
	var req SubmitStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	// 2. Enforce input size limits
	if len(req.Prompt) > maxPromptBytes {
		c.JSON(http.StatusRequestEntityTooLarge,
			ErrorResponse{Error: "prompt exceeds maximum size of 4096 bytes"})
		return
	}
	if len(req.Title) > maxTitleBytes {
		c.JSON(http.StatusRequestEntityTooLarge,
			ErrorResponse{Error: "title exceeds maximum size of 256 bytes"})
		return
	}

	// 3. Transform to dispatcher input
	input := dispatch.SubmitStoryInput{
		Title:      req.Title,
		Prompt:     req.Prompt,
		UserID:     extractUserID(c, req.UserID),
		Style:      req.Style,
		SceneCount: req.NumScenes,
	}

	// 4. Call dispatcher
	story, err := s.dispatcher.Submit(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	// 5. Return response
	c.JSON(http.StatusAccepted, &SubmitStoryResponse{
		StoryID: story.StoryID,
		Status:  string(story.Status),
		Message: "Story submitted for generation",
	})
}

// getStoryHandler handles GET /api/v1/stories/:id.
// Returns the story row joined with its scenes ordered by sequence.
func (s *Server) getStoryHandler(c *gin.Context) {
	storyID := c.Param("id")

	detail, err := s.stories.GetDetail(c.Request.Context(), storyID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// storyStatusHandler handles GET /api/v1/stories/:id/status.
// The cheap polling endpoint: one row read, no scenes.
func (s *Server) storyStatusHandler(c *gin.Context) {
	storyID := c.Param("id")

	story, err := s.stories.Get(c.Request.Context(), storyID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, &StoryStatusResponse{
		StoryID: story.StoryID,
		Status:  string(story.Status),
		Error:   story.Error,
	})
}

// listStoriesHandler handles GET /api/v1/stories.
// Supports status/user_id filters, full-text search over titles and prompts,
// and limit/offset pagination.
func (s *Server) listStoriesHandler(c *gin.Context) {
	filters := models.StoryFilters{
		UserID: c.Query("user_id"),
		Search: c.Query("search"),
	}

	if v := c.Query("status"); v != "" {
		status := models.Status(v)
		if !status.IsValid() {
			c.JSON(http.StatusBadRequest,
				ErrorResponse{Error: "invalid status: must be pending, processing, completed, or failed"})
			return
		}
		filters.Status = status
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			c.JSON(http.StatusBadRequest,
				ErrorResponse{Error: "invalid limit: must be 1-100"})
			return
		}
		filters.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest,
				ErrorResponse{Error: "invalid offset: must be non-negative"})
			return
		}
		filters.Offset = n
	}

	result, err := s.stories.List(c.Request.Context(), filters)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
