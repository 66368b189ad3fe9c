package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	scorePollTimeout = 1 * time.Second // Must be >= 1s to satisfy Redis
	reconcileLag     = 1 * time.Minute
	reconcileBatch   = 200
)

// ScoringWorker consumes score jobs and grades terminal attempts. Grading
// is eventually consistent with submission: a job may arrive late, twice,
// or be resurrected by the reconcile pass, and the conditional score
// update makes all of that harmless.
type ScoringWorker struct {
	attempts  service.AttemptStore
	questions service.QuestionStore
	answers   service.AnswerStore
	queue     service.ScoringQueue
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewScoringWorker creates a new ScoringWorker.
func NewScoringWorker(
	attempts service.AttemptStore,
	questions service.QuestionStore,
	answers service.AnswerStore,
	queue service.ScoringQueue,
	rdb *redis.Client,
	log zerolog.Logger,
) *ScoringWorker {
	return &ScoringWorker{
		attempts:  attempts,
		questions: questions,
		answers:   answers,
		queue:     queue,
		rdb:       rdb,
		log:       log.With().Str("component", "scoring_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *ScoringWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ScoringWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ScoringWorker stopping")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *ScoringWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, scorePollTimeout, config.WorkerKey.ScoreJobsQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error, sleeping 3s")
			time.Sleep(3 * time.Second)
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var job service.ScoreJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		// Malformed JSON cannot be retried. Log and discard.
		w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed score job")
		return
	}

	if err := w.score(ctx, job); err != nil {
		w.log.Error().Err(err).
			Str("attempt_id", job.AttemptID.String()).
			Msg("scoring failed, requeueing")
		w.rdb.RPush(ctx, config.WorkerKey.ScoreJobsQueue, result[1])
		time.Sleep(2 * time.Second)
	}
}

// score grades one attempt and persists the result. The update is
// conditional on the attempt being terminal with a null score, so a
// duplicate job is a no-op.
func (w *ScoringWorker) score(ctx context.Context, job service.ScoreJob) error {
	questions, err := w.questions.ListByQuiz(ctx, job.QuizID)
	if err != nil {
		return err
	}

	// Autosaved answers live in the Redis hash while the attempt is hot;
	// fall back to the persisted answer table if the hash is gone.
	answersKey := config.CacheKey.StudentAnswersKey(job.QuizID.String(), job.StudentID)
	answers, err := w.rdb.HGetAll(ctx, answersKey).Result()
	if err != nil {
		w.log.Warn().Err(err).Msg("answers hash read failed, using answer store")
		answers = nil
	}
	if len(answers) == 0 {
		answers, err = w.answers.MapByAttempt(ctx, job.QuizID, job.StudentID)
		if err != nil {
			return err
		}
	}

	score, total := GradeAnswers(questions, answers)

	applied, err := w.attempts.SetScore(ctx, job.AttemptID, score, total)
	if err != nil {
		return err
	}
	if !applied {
		// Already scored (duplicate job) or not terminal. Nothing to do.
		w.log.Debug().Str("attempt_id", job.AttemptID.String()).Msg("score not applied")
		return nil
	}

	// The attempt is graded; the autosave buffer is no longer needed.
	if err := w.rdb.Del(ctx, answersKey).Err(); err != nil {
		w.log.Warn().Err(err).Msg("failed to clear autosaved answers")
	}

	w.log.Info().
		Str("attempt_id", job.AttemptID.String()).
		Float64("score", score).
		Float64("total", total).
		Msg("attempt scored")
	return nil
}

// GradeAnswers computes (earned, total) points for an answer set against
// the question list. Unanswered and wrong answers earn nothing.
func GradeAnswers(questions []model.Question, answers map[string]string) (float64, float64) {
	var earned, total float64
	for _, q := range questions {
		total += float64(q.Points)
		if ans, ok := answers[q.ID.String()]; ok && ans == q.CorrectOption {
			earned += float64(q.Points)
		}
	}
	return earned, total
}

// Reconcile re-enqueues terminal attempts that still have no score. Covers
// a crash between the terminal transition and the enqueue; the lag keeps
// freshly submitted attempts out of the scan while their first job is
// still in flight.
func (w *ScoringWorker) Reconcile(ctx context.Context) {
	cutoff := time.Now().Add(-reconcileLag)

	unscored, err := w.attempts.ListUnscored(ctx, cutoff, reconcileBatch)
	if err != nil {
		w.log.Error().Err(err).Msg("reconcile scan failed")
		return
	}
	if len(unscored) == 0 {
		return
	}

	requeued := 0
	for _, a := range unscored {
		job := service.ScoreJob{AttemptID: a.ID, QuizID: a.QuizID, StudentID: a.StudentID}
		if err := w.queue.Enqueue(ctx, job); err != nil {
			w.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("reconcile enqueue failed")
			continue
		}
		requeued++
	}

	w.log.Info().
		Int("unscored", len(unscored)).
		Int("requeued", requeued).
		Msg("scoring reconcile pass complete")
}
