package models

import "time"

type SessionState string

const (
	StateIdle        SessionState = "idle"
	StateAuthorizing SessionState = "authorizing"
	StateUploading   SessionState = "uploading"
	StatePolling     SessionState = "polling"
	StateCompositing SessionState = "compositing"
	StateCompleted   SessionState = "completed"
	StateFailed      SessionState = "failed"
)

// Session is a point-in-time snapshot of the upload orchestrator.
type Session struct {
	ID           string
	State        SessionState
	IsProcessing bool
	CurrentFile  string
	TaskID       string
	Progress     float64
	HasComposite bool
	StartedAt    time.Time
}
