package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states. There is no stored
// NOT_STARTED value — a student who never started has no row at all.
type AttemptStatus string

const (
	AttemptStatusInProgress    AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted     AttemptStatus = "SUBMITTED"
	AttemptStatusAutoSubmitted AttemptStatus = "AUTO_SUBMITTED"
)

// Terminal reports whether the status is a final state. Terminal attempts
// never transition again.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptStatusSubmitted || s == AttemptStatusAutoSubmitted
}

// Attempt represents one student's timed try at one quiz.
//
// (QuizID, StudentID) is unique; StartedAt and Deadline are immutable after
// creation; SubmittedAt is set exactly once, together with the terminal
// status transition. Score and TotalScore are filled in by the scoring
// worker after submission.
type Attempt struct {
	ID          uuid.UUID     `json:"id"`
	QuizID      uuid.UUID     `json:"quiz_id"`
	StudentID   int           `json:"student_id"`
	Status      AttemptStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	Deadline    time.Time     `json:"deadline"`
	SubmittedAt *time.Time    `json:"submitted_at,omitempty"`
	Score       *float64      `json:"score,omitempty"`
	TotalScore  *float64      `json:"total_score,omitempty"`
}

// AttemptState is the reload/reconnect view of a running attempt: the
// remaining time plus whatever the student already autosaved.
type AttemptState struct {
	QuizID           uuid.UUID         `json:"quiz_id"`
	StudentID        int               `json:"student_id"`
	Status           AttemptStatus     `json:"status"`
	Deadline         time.Time         `json:"deadline"`
	RemainingSeconds float64           `json:"remaining_seconds"`
	AutosavedAnswers map[string]string `json:"autosaved_answers"`
}
