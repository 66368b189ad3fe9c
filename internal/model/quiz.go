package model

import (
	"time"

	"github.com/google/uuid"
)

// Quiz represents a quiz definition with its attempt window.
type Quiz struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	DurationMinutes int       `json:"duration_minutes"`
	// AutoSubmit controls whether the expiry sweeper force-submits overdue
	// attempts for this quiz.
	AutoSubmit bool      `json:"auto_submit"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Duration returns the quiz duration as a time.Duration.
func (q *Quiz) Duration() time.Duration {
	return time.Duration(q.DurationMinutes) * time.Minute
}

// WindowOpen reports whether attempts may be started at the given instant.
func (q *Quiz) WindowOpen(now time.Time) bool {
	return !now.Before(q.WindowStart) && !now.After(q.WindowEnd)
}
