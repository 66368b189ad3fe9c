package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/rs/zerolog"
)

func newTestViolationService(attempts *fakeAttemptStore) (*ViolationService, *fakeViolationStore, *fakeMonitorPublisher) {
	violations := newFakeViolationStore(attempts)
	monitor := &fakeMonitorPublisher{}
	return NewViolationService(attempts, violations, monitor, zerolog.Nop()), violations, monitor
}

func TestRecordViolationIncrementsCount(t *testing.T) {
	quiz := fixtureQuiz()
	attempts := newFakeAttemptStore()
	svc, _, monitor := newTestViolationService(attempts)

	startedAttempt(t, attempts, quiz, 1)

	for i := int64(1); i <= 3; i++ {
		count, err := svc.Record(context.Background(), 1, quiz.ID, "tab switch", nil, at(quiz, time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if count != i {
			t.Fatalf("count = %d, want %d", count, i)
		}
	}

	if len(monitor.events) != 3 {
		t.Fatalf("monitor events = %d, want 3", len(monitor.events))
	}
	if monitor.events[2].Count != 3 {
		t.Fatalf("last event count = %d, want 3", monitor.events[2].Count)
	}
}

// Identical messages are evidentiary and never deduplicated.
func TestRecordDuplicateMessages(t *testing.T) {
	quiz := fixtureQuiz()
	attempts := newFakeAttemptStore()
	svc, violations, _ := newTestViolationService(attempts)

	a := startedAttempt(t, attempts, quiz, 1)

	now := at(quiz, time.Minute)
	for i := 0; i < 2; i++ {
		if _, err := svc.Record(context.Background(), 1, quiz.ID, "fullscreen exit", nil, now); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	log, err := violations.ListByAttempt(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(log) != 2 {
		t.Fatalf("log length = %d, want 2", len(log))
	}
}

func TestRecordKeepsClientTimestampSeparate(t *testing.T) {
	quiz := fixtureQuiz()
	attempts := newFakeAttemptStore()
	svc, violations, _ := newTestViolationService(attempts)

	a := startedAttempt(t, attempts, quiz, 1)

	clientAt := at(quiz, -2*time.Hour) // absurd client clock
	serverAt := at(quiz, 5*time.Minute)
	if _, err := svc.Record(context.Background(), 1, quiz.ID, "copy attempt", &clientAt, serverAt); err != nil {
		t.Fatalf("record: %v", err)
	}

	log, _ := violations.ListByAttempt(context.Background(), a.ID)
	if !log[0].RecordedAt.Equal(serverAt) {
		t.Fatalf("recorded_at = %v, want server time %v", log[0].RecordedAt, serverAt)
	}
	if log[0].ClientReportedAt == nil || !log[0].ClientReportedAt.Equal(clientAt) {
		t.Fatalf("client_reported_at = %v, want %v", log[0].ClientReportedAt, clientAt)
	}
}

// After the attempt goes terminal, a late report is absorbed: the count
// comes back unchanged, nothing is appended, nothing is published.
func TestRecordOnTerminalAttemptIsNoOp(t *testing.T) {
	quiz := fixtureQuiz()
	attempts := newFakeAttemptStore()
	svc, violations, monitor := newTestViolationService(attempts)

	a := startedAttempt(t, attempts, quiz, 1)

	if _, err := svc.Record(context.Background(), 1, quiz.ID, "tab switch", nil, at(quiz, time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := attempts.MarkSubmitted(context.Background(), quiz.ID, 1, model.AttemptStatusSubmitted, at(quiz, 10*time.Minute)); err != nil {
		t.Fatal(err)
	}

	count, err := svc.Record(context.Background(), 1, quiz.ID, "tab switch", nil, at(quiz, 11*time.Minute))
	if err != nil {
		t.Fatalf("late record: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want unchanged 1", count)
	}

	log, _ := violations.ListByAttempt(context.Background(), a.ID)
	if len(log) != 1 {
		t.Fatalf("log length = %d, want 1", len(log))
	}
	if len(monitor.events) != 1 {
		t.Fatalf("monitor events = %d, want 1", len(monitor.events))
	}
}

func TestRecordNeverStarted(t *testing.T) {
	quiz := fixtureQuiz()
	svc, _, _ := newTestViolationService(newFakeAttemptStore())

	_, err := svc.Record(context.Background(), 1, quiz.ID, "tab switch", nil, at(quiz, time.Minute))
	if !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestRecordConcurrentReports(t *testing.T) {
	quiz := fixtureQuiz()
	attempts := newFakeAttemptStore()
	svc, violations, _ := newTestViolationService(attempts)

	a := startedAttempt(t, attempts, quiz, 1)

	const reports = 20
	var wg sync.WaitGroup
	for i := 0; i < reports; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Record(context.Background(), 1, quiz.ID, "tab switch", nil, at(quiz, time.Minute)); err != nil {
				t.Errorf("record: %v", err)
			}
		}()
	}
	wg.Wait()

	count, err := violations.Count(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != reports {
		t.Fatalf("count = %d, want %d", count, reports)
	}
}
