package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
)

// Store interfaces consumed by the services. The pgx-backed repositories
// implement them; tests substitute in-memory fakes.

// AttemptStore is the persistence contract for attempts. MarkSubmitted must
// be a true compare-and-swap: it transitions IN_PROGRESS → terminal in one
// atomic step and reports pgx.ErrNoRows when the attempt was not
// IN_PROGRESS anymore.
type AttemptStore interface {
	GetByQuizAndStudent(ctx context.Context, quizID uuid.UUID, studentID int) (*model.Attempt, error)
	Create(ctx context.Context, a *model.Attempt) error
	MarkSubmitted(ctx context.Context, quizID uuid.UUID, studentID int, status model.AttemptStatus, at time.Time) (*model.Attempt, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Attempt, error)
	ListUnscored(ctx context.Context, cutoff time.Time, limit int) ([]model.Attempt, error)
	SetScore(ctx context.Context, attemptID uuid.UUID, score, totalScore float64) (bool, error)
	ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]repository.AttemptOverview, error)
}

// QuizStore is the read contract for quiz definitions.
type QuizStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error)
	ListOpenOrUpcoming(ctx context.Context) ([]model.Quiz, error)
}

// ViolationStore is the persistence contract for the violation log.
// Append must refuse (false, nil) when the attempt is no longer
// IN_PROGRESS.
type ViolationStore interface {
	Append(ctx context.Context, attemptID uuid.UUID, message string, clientReportedAt *time.Time, at time.Time) (bool, error)
	Count(ctx context.Context, attemptID uuid.UUID) (int64, error)
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Violation, error)
}

// QuestionStore is the read contract for the external question bank.
type QuestionStore interface {
	ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]model.Question, error)
}

// AnswerStore is the read contract for the external answer store.
type AnswerStore interface {
	MapByAttempt(ctx context.Context, quizID uuid.UUID, studentID int) (map[string]string, error)
}
