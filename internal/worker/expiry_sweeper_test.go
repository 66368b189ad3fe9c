package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
	"github.com/quizdesk/quizdesk-backend/internal/service"
	"github.com/rs/zerolog"
)

// memAttemptStore is an in-memory service.AttemptStore with the same CAS
// semantics as the pgx repository. getErr injects a per-quiz read failure
// to simulate one broken row in a sweep batch.
type memAttemptStore struct {
	mu       sync.Mutex
	attempts []*model.Attempt
	getErr   map[uuid.UUID]error
}

func (s *memAttemptStore) find(quizID uuid.UUID, studentID int) *model.Attempt {
	for _, a := range s.attempts {
		if a.QuizID == quizID && a.StudentID == studentID {
			return a
		}
	}
	return nil
}

func (s *memAttemptStore) GetByQuizAndStudent(_ context.Context, quizID uuid.UUID, studentID int) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.getErr[quizID]; err != nil {
		return nil, err
	}
	a := s.find(quizID, studentID)
	if a == nil {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (s *memAttemptStore) Create(_ context.Context, a *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.find(a.QuizID, a.StudentID) != nil {
		return pgx.ErrNoRows
	}
	a.ID = uuid.New()
	cp := *a
	s.attempts = append(s.attempts, &cp)
	return nil
}

func (s *memAttemptStore) MarkSubmitted(_ context.Context, quizID uuid.UUID, studentID int, status model.AttemptStatus, at time.Time) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.find(quizID, studentID)
	if a == nil || a.Status != model.AttemptStatusInProgress {
		return nil, pgx.ErrNoRows
	}
	a.Status = status
	submittedAt := at
	a.SubmittedAt = &submittedAt
	cp := *a
	return &cp, nil
}

func (s *memAttemptStore) ListExpired(_ context.Context, now time.Time, limit int) ([]model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []model.Attempt
	for _, a := range s.attempts {
		if a.Status == model.AttemptStatusInProgress && a.Deadline.Before(now) {
			expired = append(expired, *a)
			if len(expired) == limit {
				break
			}
		}
	}
	return expired, nil
}

func (s *memAttemptStore) ListUnscored(_ context.Context, cutoff time.Time, limit int) ([]model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var unscored []model.Attempt
	for _, a := range s.attempts {
		if a.Status.Terminal() && a.Score == nil && a.SubmittedAt != nil && a.SubmittedAt.Before(cutoff) {
			unscored = append(unscored, *a)
			if len(unscored) == limit {
				break
			}
		}
	}
	return unscored, nil
}

func (s *memAttemptStore) SetScore(_ context.Context, attemptID uuid.UUID, score, totalScore float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attempts {
		if a.ID == attemptID {
			if !a.Status.Terminal() || a.Score != nil {
				return false, nil
			}
			a.Score = &score
			a.TotalScore = &totalScore
			return true, nil
		}
	}
	return false, nil
}

func (s *memAttemptStore) ListByQuiz(_ context.Context, quizID uuid.UUID) ([]repository.AttemptOverview, error) {
	return nil, nil
}

type memScoringQueue struct {
	mu   sync.Mutex
	jobs []service.ScoreJob
}

func (q *memScoringQueue) Enqueue(_ context.Context, job service.ScoreJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memScoringQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

var sweepBase = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func seedAttempt(t *testing.T, store *memAttemptStore, studentID int, deadline time.Time) *model.Attempt {
	t.Helper()
	a := &model.Attempt{
		QuizID:    uuid.New(),
		StudentID: studentID,
		Status:    model.AttemptStatusInProgress,
		StartedAt: sweepBase,
		Deadline:  deadline,
	}
	if err := store.Create(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	return a
}

func newTestSweeper(store *memAttemptStore, queue *memScoringQueue) *ExpirySweeper {
	coordinator := service.NewSubmissionCoordinator(store, queue, 30*time.Second, zerolog.Nop())
	return NewExpirySweeper(store, coordinator, 100, zerolog.Nop())
}

func TestSweepTickAutoSubmitsOverdue(t *testing.T) {
	store := &memAttemptStore{}
	queue := &memScoringQueue{}
	sweeper := newTestSweeper(store, queue)

	overdue := seedAttempt(t, store, 1, sweepBase.Add(30*time.Minute))
	live := seedAttempt(t, store, 2, sweepBase.Add(2*time.Hour))

	now := sweepBase.Add(31 * time.Minute)
	submitted, err := sweeper.SweepTick(context.Background(), now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if submitted != 1 {
		t.Fatalf("submitted = %d, want 1", submitted)
	}

	got, _ := store.GetByQuizAndStudent(context.Background(), overdue.QuizID, overdue.StudentID)
	if got.Status != model.AttemptStatusAutoSubmitted {
		t.Fatalf("overdue status = %s, want AUTO_SUBMITTED", got.Status)
	}
	if got.SubmittedAt == nil || !got.SubmittedAt.Equal(now) {
		t.Fatalf("submitted_at = %v, want sweep time %v", got.SubmittedAt, now)
	}

	untouched, _ := store.GetByQuizAndStudent(context.Background(), live.QuizID, live.StudentID)
	if untouched.Status != model.AttemptStatusInProgress {
		t.Fatalf("live attempt status = %s, want IN_PROGRESS", untouched.Status)
	}
}

// An attempt exactly at its deadline is not overdue yet.
func TestSweepTickDeadlineNotStrictlyPast(t *testing.T) {
	store := &memAttemptStore{}
	queue := &memScoringQueue{}
	sweeper := newTestSweeper(store, queue)

	deadline := sweepBase.Add(30 * time.Minute)
	seedAttempt(t, store, 1, deadline)

	submitted, err := sweeper.SweepTick(context.Background(), deadline)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if submitted != 0 {
		t.Fatalf("submitted = %d, want 0", submitted)
	}
}

// Two sweepers racing over the same backlog: every overdue attempt ends up
// terminal exactly once, with exactly one score job each.
func TestConcurrentSweepersSubmitOnce(t *testing.T) {
	store := &memAttemptStore{}
	queue := &memScoringQueue{}
	first := newTestSweeper(store, queue)
	second := NewExpirySweeper(store, service.NewSubmissionCoordinator(store, queue, 30*time.Second, zerolog.Nop()), 100, zerolog.Nop())

	const overdue = 10
	for i := 0; i < overdue; i++ {
		seedAttempt(t, store, i+1, sweepBase.Add(30*time.Minute))
	}

	now := sweepBase.Add(45 * time.Minute)
	var wg sync.WaitGroup
	totals := make(chan int, 2)
	for _, sweeper := range []*ExpirySweeper{first, second} {
		wg.Add(1)
		go func(sw *ExpirySweeper) {
			defer wg.Done()
			n, err := sw.SweepTick(context.Background(), now)
			if err != nil {
				t.Errorf("sweep: %v", err)
				return
			}
			totals <- n
		}(sweeper)
	}
	wg.Wait()
	close(totals)

	sum := 0
	for n := range totals {
		sum += n
	}
	if sum != overdue {
		t.Fatalf("total auto-submitted = %d, want %d", sum, overdue)
	}
	if queue.count() != overdue {
		t.Fatalf("scoring jobs = %d, want %d", queue.count(), overdue)
	}
}

// A sweep tick after everything is already terminal does nothing.
func TestSweepTickIdempotent(t *testing.T) {
	store := &memAttemptStore{}
	queue := &memScoringQueue{}
	sweeper := newTestSweeper(store, queue)

	seedAttempt(t, store, 1, sweepBase.Add(30*time.Minute))

	now := sweepBase.Add(31 * time.Minute)
	if _, err := sweeper.SweepTick(context.Background(), now); err != nil {
		t.Fatal(err)
	}

	again, err := sweeper.SweepTick(context.Background(), now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if again != 0 {
		t.Fatalf("second sweep submitted = %d, want 0", again)
	}
	if queue.count() != 1 {
		t.Fatalf("scoring jobs = %d, want 1", queue.count())
	}
}

// One attempt failing to submit must not abort the sweep of the others.
func TestSweepTickContinuesPastFailure(t *testing.T) {
	store := &memAttemptStore{getErr: map[uuid.UUID]error{}}
	queue := &memScoringQueue{}
	sweeper := newTestSweeper(store, queue)

	bad := seedAttempt(t, store, 1, sweepBase.Add(30*time.Minute))
	good1 := seedAttempt(t, store, 2, sweepBase.Add(30*time.Minute))
	good2 := seedAttempt(t, store, 3, sweepBase.Add(30*time.Minute))
	store.getErr[bad.QuizID] = errors.New("connection reset by peer")

	now := sweepBase.Add(31 * time.Minute)
	submitted, err := sweeper.SweepTick(context.Background(), now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if submitted != 2 {
		t.Fatalf("submitted = %d, want the 2 healthy attempts", submitted)
	}

	for _, a := range []*model.Attempt{good1, good2} {
		got, _ := store.GetByQuizAndStudent(context.Background(), a.QuizID, a.StudentID)
		if got.Status != model.AttemptStatusAutoSubmitted {
			t.Fatalf("healthy attempt status = %s, want AUTO_SUBMITTED", got.Status)
		}
	}

	// The broken one is untouched and gets picked up once it heals.
	delete(store.getErr, bad.QuizID)
	got, _ := store.GetByQuizAndStudent(context.Background(), bad.QuizID, bad.StudentID)
	if got.Status != model.AttemptStatusInProgress {
		t.Fatalf("failed attempt status = %s, want IN_PROGRESS", got.Status)
	}

	retried, err := sweeper.SweepTick(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if retried != 1 {
		t.Fatalf("retry sweep submitted = %d, want 1", retried)
	}
}

func TestSweepTickRespectsBatchSize(t *testing.T) {
	store := &memAttemptStore{}
	queue := &memScoringQueue{}
	coordinator := service.NewSubmissionCoordinator(store, queue, 30*time.Second, zerolog.Nop())
	sweeper := NewExpirySweeper(store, coordinator, 3, zerolog.Nop())

	for i := 0; i < 5; i++ {
		seedAttempt(t, store, i+1, sweepBase.Add(30*time.Minute))
	}

	now := sweepBase.Add(31 * time.Minute)
	submitted, err := sweeper.SweepTick(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if submitted != 3 {
		t.Fatalf("submitted = %d, want batch size 3", submitted)
	}

	// The next tick drains the rest.
	rest, err := sweeper.SweepTick(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if rest != 2 {
		t.Fatalf("second tick submitted = %d, want 2", rest)
	}
}
