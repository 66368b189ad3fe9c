package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
)

// In-memory store fakes with the same atomicity contracts as the pgx
// repositories: MarkSubmitted is a real compare-and-swap, Create respects
// the (quiz_id, student_id) uniqueness, Append refuses terminal attempts.
// All return pgx.ErrNoRows exactly where the repositories would.

type attemptKey struct {
	quizID    uuid.UUID
	studentID int
}

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts map[attemptKey]*model.Attempt
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: make(map[attemptKey]*model.Attempt)}
}

func (s *fakeAttemptStore) GetByQuizAndStudent(_ context.Context, quizID uuid.UUID, studentID int) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptKey{quizID, studentID}]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (s *fakeAttemptStore) Create(_ context.Context, a *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attemptKey{a.QuizID, a.StudentID}
	if _, exists := s.attempts[key]; exists {
		return pgx.ErrNoRows
	}
	a.ID = uuid.New()
	cp := *a
	s.attempts[key] = &cp
	return nil
}

func (s *fakeAttemptStore) MarkSubmitted(_ context.Context, quizID uuid.UUID, studentID int, status model.AttemptStatus, at time.Time) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[attemptKey{quizID, studentID}]
	if !ok || a.Status != model.AttemptStatusInProgress {
		return nil, pgx.ErrNoRows
	}
	a.Status = status
	submittedAt := at
	a.SubmittedAt = &submittedAt
	cp := *a
	return &cp, nil
}

func (s *fakeAttemptStore) ListExpired(_ context.Context, now time.Time, limit int) ([]model.Attempt, error) {
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

func (s *fakeAttemptStore) ListUnscored(_ context.Context, cutoff time.Time, limit int) ([]model.Attempt, error) {
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

func (s *fakeAttemptStore) SetScore(_ context.Context, attemptID uuid.UUID, score, totalScore float64) (bool, error) {
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

func (s *fakeAttemptStore) ListByQuiz(_ context.Context, quizID uuid.UUID) ([]repository.AttemptOverview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var overviews []repository.AttemptOverview
	for _, a := range s.attempts {
		if a.QuizID == quizID {
			overviews = append(overviews, repository.AttemptOverview{Attempt: *a})
		}
	}
	return overviews, nil
}

type fakeQuizStore struct {
	mu      sync.Mutex
	quizzes map[uuid.UUID]*model.Quiz
}

func newFakeQuizStore(quizzes ...*model.Quiz) *fakeQuizStore {
	s := &fakeQuizStore{quizzes: make(map[uuid.UUID]*model.Quiz)}
	for _, q := range quizzes {
		s.quizzes[q.ID] = q
	}
	return s
}

func (s *fakeQuizStore) GetByID(_ context.Context, id uuid.UUID) (*model.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quizzes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *q
	return &cp, nil
}

func (s *fakeQuizStore) ListOpenOrUpcoming(_ context.Context) ([]model.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var quizzes []model.Quiz
	for _, q := range s.quizzes {
		quizzes = append(quizzes, *q)
	}
	return quizzes, nil
}

type fakeViolationStore struct {
	mu       sync.Mutex
	attempts *fakeAttemptStore
	logs     map[uuid.UUID][]model.Violation
}

func newFakeViolationStore(attempts *fakeAttemptStore) *fakeViolationStore {
	return &fakeViolationStore{
		attempts: attempts,
		logs:     make(map[uuid.UUID][]model.Violation),
	}
}

func (s *fakeViolationStore) Append(_ context.Context, attemptID uuid.UUID, message string, clientReportedAt *time.Time, at time.Time) (bool, error) {
	s.attempts.mu.Lock()
	var attempt *model.Attempt
	for _, a := range s.attempts.attempts {
		if a.ID == attemptID {
			attempt = a
			break
		}
	}
	inProgress := attempt != nil && attempt.Status == model.AttemptStatusInProgress
	s.attempts.mu.Unlock()

	if !inProgress {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[attemptID] = append(s.logs[attemptID], model.Violation{
		ID:               int64(len(s.logs[attemptID]) + 1),
		AttemptID:        attemptID,
		Message:          message,
		RecordedAt:       at,
		ClientReportedAt: clientReportedAt,
	})
	return true, nil
}

func (s *fakeViolationStore) Count(_ context.Context, attemptID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.logs[attemptID])), nil
}

func (s *fakeViolationStore) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Violation(nil), s.logs[attemptID]...), nil
}

// fakeScoringQueue records enqueued jobs; set err to make every Enqueue
// fail (broken Redis).
type fakeScoringQueue struct {
	mu   sync.Mutex
	err  error
	jobs []ScoreJob
}

func (q *fakeScoringQueue) Enqueue(_ context.Context, job ScoreJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeScoringQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type fakeMonitorPublisher struct {
	mu     sync.Mutex
	events []model.ViolationEvent
}

func (p *fakeMonitorPublisher) PublishViolation(_ context.Context, event model.ViolationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type fakeDeadlineCache struct {
	mu        sync.Mutex
	deadlines map[attemptKey]time.Time
	answers   map[attemptKey]map[string]string
}

func newFakeDeadlineCache() *fakeDeadlineCache {
	return &fakeDeadlineCache{
		deadlines: make(map[attemptKey]time.Time),
		answers:   make(map[attemptKey]map[string]string),
	}
}

func (c *fakeDeadlineCache) Set(_ context.Context, quizID uuid.UUID, studentID int, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines[attemptKey{quizID, studentID}] = deadline
	return nil
}

func (c *fakeDeadlineCache) Get(_ context.Context, quizID uuid.UUID, studentID int) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.deadlines[attemptKey{quizID, studentID}]
	if !ok {
		return time.Time{}, ErrCacheMiss
	}
	return d, nil
}

func (c *fakeDeadlineCache) GetAnswers(_ context.Context, quizID uuid.UUID, studentID int) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	answers := c.answers[attemptKey{quizID, studentID}]
	if answers == nil {
		answers = map[string]string{}
	}
	return answers, nil
}

// Shared fixture: a quiz with a 10:00-11:00 window and a 30 minute timer.
func fixtureQuiz() *model.Quiz {
	return &model.Quiz{
		ID:              uuid.New(),
		Title:           "Algebra Midterm",
		WindowStart:     time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		WindowEnd:       time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		AutoSubmit:      true,
	}
}

func at(quiz *model.Quiz, offset time.Duration) time.Time {
	return quiz.WindowStart.Add(offset)
}
