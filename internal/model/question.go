package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Question is a quiz question including its answer key. Only the scoring
// path may see CorrectOption.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	QuizID        uuid.UUID       `json:"quiz_id"`
	QuestionText  string          `json:"question_text"`
	Options       json.RawMessage `json:"options"`
	CorrectOption string          `json:"correct_option"`
	Points        int             `json:"points"`
	OrderNum      int             `json:"order_num"`
}

// QuestionForStudent is a question without the correct answer, served to
// students during a live attempt.
type QuestionForStudent struct {
	ID           uuid.UUID       `json:"id"`
	QuestionText string          `json:"question_text"`
	Options      json.RawMessage `json:"options"`
	OrderNum     int             `json:"order_num"`
}

// QuizPayload is the Redis-cached content bundle sent to students
// (no correct answers).
type QuizPayload struct {
	QuizID    uuid.UUID            `json:"quiz_id"`
	Title     string               `json:"title"`
	Duration  int                  `json:"duration_minutes"`
	Questions []QuestionForStudent `json:"questions"`
}
