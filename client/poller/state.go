package poller

import (
	"math"

	"idPhoto/client/models"
)

// Phase is the poller's view of a task after one status observation.
type Phase int

const (
	PhasePending Phase = iota
	PhaseCompleted
	PhaseFailed
	PhaseTimedOut
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	case PhaseTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

func (p Phase) Terminal() bool {
	return p != PhasePending
}

// Step maps the status observed on the given 1-based attempt to the next
// phase. A non-terminal status on the last allowed attempt times out.
func Step(attempt, maxAttempts int, status models.TaskStatus) Phase {
	switch status {
	case models.StatusCompleted:
		return PhaseCompleted
	case models.StatusFailed:
		return PhaseFailed
	}
	if attempt >= maxAttempts {
		return PhaseTimedOut
	}
	return PhasePending
}

const (
	InitialProgress  = 10.0
	PollingCeiling   = 90.0
	CompleteProgress = 100.0
)

// Progress is the percentage shown after the given attempt. It rises quickly
// at first and flattens toward the ceiling.
func Progress(attempt, maxAttempts int) float64 {
	if maxAttempts <= 0 {
		return InitialProgress
	}
	ratio := float64(attempt) / float64(maxAttempts)
	return math.Min(InitialProgress+math.Pow(ratio, 0.7)*80, PollingCeiling)
}
