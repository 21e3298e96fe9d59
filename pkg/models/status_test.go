package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to processing", StatusPending, StatusProcessing, true},
		{"pending to failed", StatusPending, StatusFailed, true},
		{"pending to completed skips processing", StatusPending, StatusCompleted, false},
		{"processing re-entrant", StatusProcessing, StatusProcessing, true},
		{"processing to completed", StatusProcessing, StatusCompleted, true},
		{"processing to failed", StatusProcessing, StatusFailed, true},
		{"processing back to pending", StatusProcessing, StatusPending, false},
		{"completed is frozen", StatusCompleted, StatusProcessing, false},
		{"completed cannot fail", StatusCompleted, StatusFailed, false},
		{"failed is frozen", StatusFailed, StatusProcessing, false},
		{"failed cannot complete", StatusFailed, StatusCompleted, false},
		{"failed cannot re-fail", StatusFailed, StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}

func TestStatusIsValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed} {
		assert.True(t, s.IsValid(), string(s))
	}
	assert.False(t, Status("queued").IsValid())
	assert.False(t, Status("").IsValid())
}

func TestTransitionSources(t *testing.T) {
	assert.ElementsMatch(t, []Status{StatusPending, StatusProcessing}, TransitionSources(StatusProcessing))
	assert.ElementsMatch(t, []Status{StatusProcessing}, TransitionSources(StatusCompleted))
	assert.ElementsMatch(t, []Status{StatusPending, StatusProcessing}, TransitionSources(StatusFailed))
	assert.Empty(t, TransitionSources(StatusPending))
}

func TestSceneHasArtifacts(t *testing.T) {
	s := &Scene{}
	assert.False(t, s.HasArtifacts())
	s.ImageURL = "https://cdn.example.com/i.png"
	assert.False(t, s.HasArtifacts())
	s.AudioURL = "https://cdn.example.com/a.mp3"
	assert.True(t, s.HasArtifacts())
}
