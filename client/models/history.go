package models

import "time"

// SessionRecord is one row of processing history.
type SessionRecord struct {
	ID               string
	TraceID          string
	OriginalFilename string
	TaskID           string
	State            SessionState
	ErrorMessage     string
	OutputPath       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}
