package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SubmitTrigger identifies who initiated a submission.
type SubmitTrigger string

const (
	TriggerUser SubmitTrigger = "USER"
	TriggerAuto SubmitTrigger = "AUTO"
)

// SubmitOutcome is the result classification of a Submit call.
type SubmitOutcome string

const (
	// OutcomeSubmittedNow: this call won the terminal transition.
	OutcomeSubmittedNow SubmitOutcome = "SUBMITTED_NOW"
	// OutcomeAlreadySubmitted: a concurrent or earlier caller won; not an
	// error.
	OutcomeAlreadySubmitted SubmitOutcome = "ALREADY_SUBMITTED"
)

// SubmitResult carries the outcome and the stored attempt after the call.
type SubmitResult struct {
	Outcome SubmitOutcome  `json:"outcome"`
	Attempt *model.Attempt `json:"attempt"`
}

// ScoreJob is one scoring task for a terminal attempt.
type ScoreJob struct {
	AttemptID uuid.UUID `json:"attempt_id"`
	QuizID    uuid.UUID `json:"quiz_id"`
	StudentID int       `json:"student_id"`
}

// ScoringQueue hands terminal attempts to the scoring pipeline. Submission
// correctness never depends on it: enqueue failures are logged and the
// reconcile pass retries later.
type ScoringQueue interface {
	Enqueue(ctx context.Context, job ScoreJob) error
}

// RedisScoringQueue pushes score jobs onto the Redis worker queue.
type RedisScoringQueue struct {
	rdb *redis.Client
}

// NewRedisScoringQueue creates a new RedisScoringQueue.
func NewRedisScoringQueue(rdb *redis.Client) *RedisScoringQueue {
	return &RedisScoringQueue{rdb: rdb}
}

// Enqueue pushes one score job.
func (q *RedisScoringQueue) Enqueue(ctx context.Context, job ScoreJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.ScoreJobsQueue, raw).Err()
}

// SubmissionCoordinator owns the exactly-once terminal transition. The only
// mutation primitive is the store's conditional update (status predicate
// and write in one statement); no in-memory lock is held across I/O, so the
// guarantee survives multiple server processes.
type SubmissionCoordinator struct {
	attempts AttemptStore
	scoring  ScoringQueue
	grace    time.Duration
	log      zerolog.Logger
}

// NewSubmissionCoordinator creates a new SubmissionCoordinator. grace is
// how long past the deadline a USER submit is still honored.
func NewSubmissionCoordinator(attempts AttemptStore, scoring ScoringQueue, grace time.Duration, log zerolog.Logger) *SubmissionCoordinator {
	return &SubmissionCoordinator{
		attempts: attempts,
		scoring:  scoring,
		grace:    grace,
		log:      log.With().Str("component", "submission_coordinator").Logger(),
	}
}

// Submit transitions the attempt to the terminal state matching the
// trigger. Exactly one caller per attempt ever observes SUBMITTED_NOW; all
// concurrent and later callers observe ALREADY_SUBMITTED. Only the winner
// enqueues scoring.
//
// Safe to retry after a client timeout: a retry either still wins the CAS
// or observes ALREADY_SUBMITTED.
func (s *SubmissionCoordinator) Submit(ctx context.Context, quizID uuid.UUID, studentID int, trigger SubmitTrigger, now time.Time) (*SubmitResult, error) {
	current, err := s.attempts.GetByQuizAndStudent(ctx, quizID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotStarted
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	// A severely delayed user request past deadline+grace is refused; the
	// sweeper owns the attempt by then. This races harmlessly with the CAS
	// below — whichever path wins, the transition happens once.
	if trigger == TriggerUser && !current.Status.Terminal() && now.After(current.Deadline.Add(s.grace)) {
		return nil, ErrWindowExpired
	}

	target := model.AttemptStatusSubmitted
	if trigger == TriggerAuto {
		target = model.AttemptStatusAutoSubmitted
	}

	updated, err := s.attempts.MarkSubmitted(ctx, quizID, studentID, target, now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race (or the attempt was terminal all along). Report
			// the stored state; do not re-invoke scoring.
			stored, fetchErr := s.attempts.GetByQuizAndStudent(ctx, quizID, studentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("attempt already terminal, fetch failed: %w", fetchErr)
			}
			return &SubmitResult{Outcome: OutcomeAlreadySubmitted, Attempt: stored}, nil
		}
		return nil, fmt.Errorf("mark submitted: %w", err)
	}

	// This caller won the transition: enqueue scoring exactly once.
	// Scoring is fire-and-forget relative to the submission — a failure
	// here never rolls back the terminal state; the reconcile pass will
	// pick the attempt up again.
	job := ScoreJob{AttemptID: updated.ID, QuizID: quizID, StudentID: studentID}
	if err := s.scoring.Enqueue(ctx, job); err != nil {
		s.log.Error().Err(err).
			Str("attempt_id", updated.ID.String()).
			Msg("scoring enqueue failed, reconcile pass will retry")
	}

	s.log.Info().
		Str("attempt_id", updated.ID.String()).
		Str("trigger", string(trigger)).
		Str("status", string(updated.Status)).
		Msg("attempt submitted")

	return &SubmitResult{Outcome: OutcomeSubmittedNow, Attempt: updated}, nil
}
