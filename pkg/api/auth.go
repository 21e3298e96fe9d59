package api

import (
	"github.com/gin-gonic/gin"
)

// extractUserID resolves the submitting user.
// Priority: request body > X-User-ID header (set by the auth proxy) >
// "anonymous". Authentication itself happens upstream; the pipeline only
// records the id.
func extractUserID(c *gin.Context, bodyUserID string) string {
	if bodyUserID != "" {
		return bodyUserID
	}
	if user := c.GetHeader("X-User-ID"); user != "" {
		return user
	}
	return "anonymous"
}
