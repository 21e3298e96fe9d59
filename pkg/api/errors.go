package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storyloom/storyloom/pkg/store"
)

// respondError maps repository and dispatcher errors to HTTP responses.
func respondError(c *gin.Context, err error) {
	var validErr *store.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: validErr.Error()})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "story not found"})
		return
	}
	if errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrAlreadyClaimed) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "story is in a conflicting state"})
		return
	}

	// Unexpected error: log the cause, hide it from the client.
	slog.Error("Unexpected error handling request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}
