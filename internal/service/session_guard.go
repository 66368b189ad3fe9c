package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// SessionGuard performs the per-request window and state checks that gate
// every attempt operation. It only reads; attempt creation belongs to
// AttemptService.
type SessionGuard struct {
	attempts AttemptStore
	quizzes  QuizStore
}

// NewSessionGuard creates a new SessionGuard.
func NewSessionGuard(attempts AttemptStore, quizzes QuizStore) *SessionGuard {
	return &SessionGuard{attempts: attempts, quizzes: quizzes}
}

// CanStart decides whether the student may start (or resume) the quiz at
// the given instant. On allow it returns the quiz, plus the existing
// IN_PROGRESS attempt when this is an idempotent restart — nil means
// "create new".
//
// Denials: ErrQuizNotFound, ErrWindowNotOpen, ErrAlreadyTerminal.
func (g *SessionGuard) CanStart(ctx context.Context, studentID int, quizID uuid.UUID, now time.Time) (*model.Quiz, *model.Attempt, error) {
	quiz, err := g.quizzes.GetByID(ctx, quizID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrQuizNotFound
		}
		return nil, nil, fmt.Errorf("get quiz: %w", err)
	}

	existing, err := g.attempts.GetByQuizAndStudent(ctx, quizID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("get attempt: %w", err)
	}

	// A terminal attempt wins over any window consideration: the student
	// is told "already submitted", never "window closed".
	if existing != nil && existing.Status.Terminal() {
		return nil, nil, ErrAlreadyTerminal
	}

	// Idempotent restart (page reload, second tab): the running attempt is
	// returned unchanged even if the window has since closed — the timer
	// keeps its original deadline.
	if existing != nil {
		return quiz, existing, nil
	}

	if !quiz.WindowOpen(now) {
		return nil, nil, ErrWindowNotOpen
	}

	return quiz, nil, nil
}

// CanAccessContent decides whether quiz content (questions, sections) may
// be served to the student. A terminal attempt is a hard denial — question
// content must not be re-servable through the live-attempt pathway after
// submission.
//
// Denials: ErrNotStarted, ErrAlreadyTerminal.
func (g *SessionGuard) CanAccessContent(ctx context.Context, studentID int, quizID uuid.UUID) (*model.Attempt, error) {
	attempt, err := g.attempts.GetByQuizAndStudent(ctx, quizID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotStarted
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	if attempt.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}

	return attempt, nil
}
