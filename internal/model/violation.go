package model

import (
	"time"

	"github.com/google/uuid"
)

// Violation is one recorded integrity event (tab switch, fullscreen exit,
// copy/paste, ...) on an attempt. The log is append-only and evidentiary:
// identical messages are never deduplicated.
type Violation struct {
	ID        int64     `json:"id"`
	AttemptID uuid.UUID `json:"attempt_id"`
	Message   string    `json:"message"`
	// RecordedAt is server receive time and the authoritative timestamp.
	RecordedAt time.Time `json:"recorded_at"`
	// ClientReportedAt is the untrusted client-side timestamp, kept for
	// display only.
	ClientReportedAt *time.Time `json:"client_reported_at,omitempty"`
}

// RecordViolationRequest is the payload for reporting an integrity event.
type RecordViolationRequest struct {
	Message          string     `json:"message" binding:"required,min=1,max=500"`
	ClientReportedAt *time.Time `json:"client_reported_at" binding:"omitempty"`
}

// ViolationEvent is the message published on a quiz's monitor channel when
// a violation is recorded.
type ViolationEvent struct {
	QuizID     uuid.UUID `json:"quiz_id"`
	StudentID  int       `json:"student_id"`
	Message    string    `json:"message"`
	Count      int64     `json:"count"`
	RecordedAt time.Time `json:"recorded_at"`
}
