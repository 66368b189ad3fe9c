package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quizdesk/quizdesk-backend/internal/model"
)

func TestCanStartBeforeWindowOpens(t *testing.T) {
	quiz := fixtureQuiz()
	guard := NewSessionGuard(newFakeAttemptStore(), newFakeQuizStore(quiz))

	_, _, err := guard.CanStart(context.Background(), 1, quiz.ID, at(quiz, -time.Minute))
	if !errors.Is(err, ErrWindowNotOpen) {
		t.Fatalf("expected ErrWindowNotOpen, got %v", err)
	}
}

func TestCanStartAfterWindowCloses(t *testing.T) {
	quiz := fixtureQuiz()
	guard := NewSessionGuard(newFakeAttemptStore(), newFakeQuizStore(quiz))

	_, _, err := guard.CanStart(context.Background(), 1, quiz.ID, quiz.WindowEnd.Add(time.Second))
	if !errors.Is(err, ErrWindowNotOpen) {
		t.Fatalf("expected ErrWindowNotOpen, got %v", err)
	}
}

func TestCanStartAtWindowBoundaries(t *testing.T) {
	quiz := fixtureQuiz()
	guard := NewSessionGuard(newFakeAttemptStore(), newFakeQuizStore(quiz))

	for _, now := range []time.Time{quiz.WindowStart, quiz.WindowEnd} {
		if _, _, err := guard.CanStart(context.Background(), 1, quiz.ID, now); err != nil {
			t.Fatalf("start at %v: expected allow, got %v", now, err)
		}
	}
}

func TestCanStartUnknownQuiz(t *testing.T) {
	guard := NewSessionGuard(newFakeAttemptStore(), newFakeQuizStore())

	_, _, err := guard.CanStart(context.Background(), 1, uuid.New(), time.Now())
	if !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestCanStartReturnsRunningAttempt(t *testing.T) {
	quiz := fixtureQuiz()
	attempts := newFakeAttemptStore()
	guard := NewSessionGuard(attempts, newFakeQuizStore(quiz))

	running := &model.Attempt{
		QuizID:    quiz.ID,
		StudentID: 1,
		Status:    model.AttemptStatusInProgress,
		StartedAt: at(quiz, 5*time.Minute),
		Deadline:  at(quiz, 35*time.Minute),
	}
	if err := attempts.Create(context.Background(), running); err != nil {
		t.Fatal(err)
	}

	_, existing, err := guard.CanStart(context.Background(), 1, quiz.ID, at(quiz, 10*time.Minute))
	if err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if existing == nil || existing.ID != running.ID {
		t.Fatalf("expected the running attempt back, got %+v", existing)
	}
	if !existing.Deadline.Equal(running.Deadline) {
		t.Fatalf("deadline changed on restart: %v != %v", existing.Deadline, running.Deadline)
	}
}

// A reload after the window closes must still return the running attempt:
// the window gates starting, not resuming.
func TestCanStartResumeAfterWindowClose(t *testing.T) {
	quiz := fixtureQuiz()
	attempts := newFakeAttemptStore()
	guard := NewSessionGuard(attempts, newFakeQuizStore(quiz))

	running := &model.Attempt{
		QuizID:    quiz.ID,
		StudentID: 1,
		Status:    model.AttemptStatusInProgress,
		StartedAt: at(quiz, 45*time.Minute),
		Deadline:  quiz.WindowEnd,
	}
	if err := attempts.Create(context.Background(), running); err != nil {
		t.Fatal(err)
	}

	_, existing, err := guard.CanStart(context.Background(), 1, quiz.ID, quiz.WindowEnd.Add(time.Minute))
	if err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if existing == nil {
		t.Fatal("expected the running attempt back")
	}
}

func TestCanStartTerminalBeatsWindowCheck(t *testing.T) {
	quiz := fixtureQuiz()
	attempts := newFakeAttemptStore()
	guard := NewSessionGuard(attempts, newFakeQuizStore(quiz))

	done := &model.Attempt{
		QuizID:    quiz.ID,
		StudentID: 1,
		Status:    model.AttemptStatusInProgress,
		StartedAt: at(quiz, 0),
		Deadline:  at(quiz, 30*time.Minute),
	}
	if err := attempts.Create(context.Background(), done); err != nil {
		t.Fatal(err)
	}
	if _, err := attempts.MarkSubmitted(context.Background(), quiz.ID, 1, model.AttemptStatusSubmitted, at(quiz, 20*time.Minute)); err != nil {
		t.Fatal(err)
	}

	// Even outside the window, the answer is "already submitted", not
	// "window closed".
	_, _, err := guard.CanStart(context.Background(), 1, quiz.ID, quiz.WindowEnd.Add(time.Hour))
	if !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestCanAccessContentNeverStarted(t *testing.T) {
	quiz := fixtureQuiz()
	guard := NewSessionGuard(newFakeAttemptStore(), newFakeQuizStore(quiz))

	_, err := guard.CanAccessContent(context.Background(), 1, quiz.ID)
	if !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestCanAccessContentTerminalAttempt(t *testing.T) {
	quiz := fixtureQuiz()
	attempts := newFakeAttemptStore()
	guard := NewSessionGuard(attempts, newFakeQuizStore(quiz))

	a := &model.Attempt{
		QuizID:    quiz.ID,
		StudentID: 1,
		Status:    model.AttemptStatusInProgress,
		StartedAt: at(quiz, 0),
		Deadline:  at(quiz, 30*time.Minute),
	}
	if err := attempts.Create(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if _, err := attempts.MarkSubmitted(context.Background(), quiz.ID, 1, model.AttemptStatusAutoSubmitted, at(quiz, 30*time.Minute)); err != nil {
		t.Fatal(err)
	}

	_, err := guard.CanAccessContent(context.Background(), 1, quiz.ID)
	if !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
}
