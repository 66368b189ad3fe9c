package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DeadlineCache caches attempt deadlines for fast state reads. Best-effort:
// the attempts table is always the source of truth.
type DeadlineCache interface {
	Set(ctx context.Context, quizID uuid.UUID, studentID int, deadline time.Time) error
	Get(ctx context.Context, quizID uuid.UUID, studentID int) (time.Time, error)
	GetAnswers(ctx context.Context, quizID uuid.UUID, studentID int) (map[string]string, error)
}

// ErrCacheMiss is returned by DeadlineCache.Get when no entry exists.
var ErrCacheMiss = errors.New("cache miss")

// RedisAttemptCache is the Redis-backed DeadlineCache.
type RedisAttemptCache struct {
	rdb *redis.Client
}

// NewRedisAttemptCache creates a new RedisAttemptCache.
func NewRedisAttemptCache(rdb *redis.Client) *RedisAttemptCache {
	return &RedisAttemptCache{rdb: rdb}
}

// Set stores the deadline as a Unix timestamp, expiring once the deadline
// is long past.
func (c *RedisAttemptCache) Set(ctx context.Context, quizID uuid.UUID, studentID int, deadline time.Time) error {
	key := config.CacheKey.AttemptDeadlineKey(quizID.String(), studentID)
	ttl := time.Until(deadline) + time.Hour
	if ttl < time.Hour {
		ttl = time.Hour
	}
	return c.rdb.Set(ctx, key, deadline.Unix(), ttl).Err()
}

// Get retrieves a cached deadline, ErrCacheMiss if absent.
func (c *RedisAttemptCache) Get(ctx context.Context, quizID uuid.UUID, studentID int) (time.Time, error) {
	key := config.CacheKey.AttemptDeadlineKey(quizID.String(), studentID)
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, ErrCacheMiss
	}
	if err != nil {
		return time.Time{}, err
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid deadline format in cache: %w", err)
	}
	return time.Unix(unix, 0), nil
}

// GetAnswers retrieves the student's autosaved answers hash.
func (c *RedisAttemptCache) GetAnswers(ctx context.Context, quizID uuid.UUID, studentID int) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, config.CacheKey.StudentAnswersKey(quizID.String(), studentID)).Result()
}

// AttemptService owns attempt creation and the read paths a live client
// needs (content, reload state).
type AttemptService struct {
	guard    *SessionGuard
	attempts AttemptStore
	content  *QuizContentService
	cache    DeadlineCache
	log      zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	guard *SessionGuard,
	attempts AttemptStore,
	content *QuizContentService,
	cache DeadlineCache,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		guard:    guard,
		attempts: attempts,
		content:  content,
		cache:    cache,
		log:      log.With().Str("component", "attempt_service").Logger(),
	}
}

// Start creates the student's attempt for the quiz, or returns the running
// one unchanged (reload/reconnect keeps the original timer). Race-free
// under concurrent duplicate starts: the unique (quiz_id, student_id)
// constraint decides the winner and the loser returns the winning row.
func (s *AttemptService) Start(ctx context.Context, studentID int, quizID uuid.UUID, now time.Time) (*model.Attempt, error) {
	quiz, existing, err := s.guard.CanStart(ctx, studentID, quizID, now)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		s.cacheDeadline(ctx, existing)
		return existing, nil
	}

	// Deadline is fixed here and never recomputed, even if the quiz window
	// or duration is edited later.
	deadline := now.Add(quiz.Duration())
	if deadline.After(quiz.WindowEnd) {
		deadline = quiz.WindowEnd
	}

	attempt := &model.Attempt{
		QuizID:    quizID,
		StudentID: studentID,
		Status:    model.AttemptStatusInProgress,
		StartedAt: now,
		Deadline:  deadline,
	}

	if err := s.attempts.Create(ctx, attempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent start from another tab won the insert. Return the
			// winning row, not an error.
			winner, fetchErr := s.attempts.GetByQuizAndStudent(ctx, quizID, studentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start detected, fetch winner: %w", fetchErr)
			}
			s.cacheDeadline(ctx, winner)
			return winner, nil
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.cacheDeadline(ctx, attempt)
	return attempt, nil
}

// GetContent returns the quiz's question payload for a live attempt.
// Terminal attempts are refused by the guard — content is never re-served
// after submission.
func (s *AttemptService) GetContent(ctx context.Context, studentID int, quizID uuid.UUID) (*model.QuizPayload, error) {
	if _, err := s.guard.CanAccessContent(ctx, studentID, quizID); err != nil {
		return nil, err
	}
	return s.content.GetQuizPayload(ctx, quizID)
}

// GetState returns the reload view of an attempt: remaining seconds and
// autosaved answers. Deadline comes from Redis when cached, with a
// PostgreSQL fallback that self-heals the cache.
func (s *AttemptService) GetState(ctx context.Context, studentID int, quizID uuid.UUID, now time.Time) (*model.AttemptState, error) {
	attempt, err := s.guard.CanAccessContent(ctx, studentID, quizID)
	if err != nil {
		return nil, err
	}

	deadline, err := s.cache.Get(ctx, quizID, studentID)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			// Real cache error; the DB row we already hold is authoritative.
			s.log.Warn().Err(err).Msg("deadline cache read failed")
		}
		deadline = attempt.Deadline
		s.cacheDeadline(ctx, attempt)
	}

	answers, err := s.cache.GetAnswers(ctx, quizID, studentID)
	if err != nil {
		s.log.Warn().Err(err).Msg("autosaved answers read failed")
		answers = map[string]string{}
	}

	remaining := deadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	return &model.AttemptState{
		QuizID:           quizID,
		StudentID:        studentID,
		Status:           attempt.Status,
		Deadline:         deadline,
		RemainingSeconds: remaining.Seconds(),
		AutosavedAnswers: answers,
	}, nil
}

// ListOverview returns a quiz's attempts with student names and violation
// counts. Read-only invigilator view.
func (s *AttemptService) ListOverview(ctx context.Context, quizID uuid.UUID) ([]repository.AttemptOverview, error) {
	return s.attempts.ListByQuiz(ctx, quizID)
}

func (s *AttemptService) cacheDeadline(ctx context.Context, a *model.Attempt) {
	if err := s.cache.Set(ctx, a.QuizID, a.StudentID, a.Deadline); err != nil {
		s.log.Warn().Err(err).
			Str("quiz_id", a.QuizID.String()).
			Int("student_id", a.StudentID).
			Msg("failed to cache deadline")
	}
}
