package models

// Status is the lifecycle state of a story generation job.
type Status string

const (
	// StatusPending means the story row exists but no worker has picked it up
	StatusPending Status = "pending"
	// StatusProcessing means a worker is actively generating scenes
	StatusProcessing Status = "processing"
	// StatusCompleted means every scene was generated and persisted
	StatusCompleted Status = "completed"
	// StatusFailed means the job gave up; Story.Error says why
	StatusFailed Status = "failed"
)

// IsValid checks if the status is a known lifecycle state
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is absorbing: once a story is
// completed or failed no further transition is legal.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition. processing -> processing is allowed so redeliveries and
// heartbeats can re-stamp an in-flight story.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusProcessing || next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// TransitionSources returns the statuses from which next is reachable.
// Used by the store to build guarded conditional updates.
func TransitionSources(next Status) []Status {
	var from []Status
	for _, s := range []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed} {
		if s.CanTransition(next) {
			from = append(from, s)
		}
	}
	return from
}
