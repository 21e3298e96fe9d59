package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorError(t *testing.T) {
	tests := []struct {
		name     string
		err      *ValidationError
		contains []string
	}{
		{
			name: "full error",
			err:  NewValidationError("queue", "scene_parallelism", errors.New("must be at least 1")),
			contains: []string{
				"queue",
				"scene_parallelism",
				"must be at least 1",
			},
		},
		{
			name: "section-only error",
			err:  NewValidationError("storage", "", ErrMissingRequiredField),
			contains: []string{
				"storage",
				"missing required field",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()
			for _, substr := range tt.contains {
				assert.Contains(t, errStr, substr)
			}
		})
	}
}

func TestValidationErrorUnwrap(t *testing.T) {
	validationErr := NewValidationError("providers", "text.model", ErrMissingRequiredField)

	assert.Equal(t, ErrMissingRequiredField, validationErr.Unwrap())
	assert.True(t, errors.Is(validationErr, ErrMissingRequiredField))
}

func TestLoadErrorError(t *testing.T) {
	err := NewLoadError("storyloom.yaml", errors.New("yaml: unmarshal error"))

	errStr := err.Error()
	assert.Contains(t, errStr, "failed to load")
	assert.Contains(t, errStr, "storyloom.yaml")
	assert.Contains(t, errStr, "unmarshal error")
}

func TestLoadErrorUnwrap(t *testing.T) {
	loadErr := NewLoadError("storyloom.yaml", ErrConfigNotFound)

	assert.Equal(t, ErrConfigNotFound, loadErr.Unwrap())
	assert.True(t, errors.Is(loadErr, ErrConfigNotFound))
}
