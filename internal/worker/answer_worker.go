package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	answerPollTimeout = time.Second
	answerRetryDelay  = 5 * time.Second
	// answerDrainLimit bounds how many queued answers shutdown will flush;
	// anything beyond waits for the next boot.
	answerDrainLimit = 10000
)

// AnswerWorker flushes autosaved answers from the Redis queue into the
// student_answers table. The client-facing autosave path writes each answer
// into the per-attempt Redis hash and enqueues a copy here; the table is
// what scoring falls back to once the hash is gone.
type AnswerWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAnswerWorker creates a new AnswerWorker.
func NewAnswerWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AnswerWorker {
	return &AnswerWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "answer_worker").Logger(),
	}
}

type savedAnswer struct {
	StudentID  int    `json:"student_id"`
	QuizID     string `json:"quiz_id"`
	QuestionID string `json:"q_id"`
	Answer     string `json:"answer"`
}

// Start runs the worker loop until ctx is cancelled, then drains what is
// left on the queue. Call in a goroutine.
func (w *AnswerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AnswerWorker started")

	for ctx.Err() == nil {
		raw, ok := w.pop(ctx)
		if !ok {
			continue
		}
		if !w.handle(ctx, raw) {
			// The item is back on the queue; back off so a dead database
			// does not spin the loop.
			time.Sleep(answerRetryDelay)
		}
	}

	w.log.Info().Msg("AnswerWorker stopping...")
	w.drain(context.Background())
	w.log.Info().Msg("AnswerWorker stopped")
}

func (w *AnswerWorker) pop(ctx context.Context) (string, bool) {
	result, err := w.rdb.BLPop(ctx, answerPollTimeout, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return "", false
	}
	if len(result) < 2 {
		return "", false
	}
	return result[1], true
}

// handle persists one queue item. Returns false after requeueing the item
// for retry; malformed items are dropped, not retried.
func (w *AnswerWorker) handle(ctx context.Context, raw string) bool {
	var item savedAnswer
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed answer item")
		return true
	}

	if err := w.persist(ctx, &item); err != nil {
		w.log.Error().Err(err).
			Int("student_id", item.StudentID).
			Str("quiz_id", item.QuizID).
			Msg("Persist failed, requeueing")
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw)
		return false
	}
	return true
}

func (w *AnswerWorker) persist(ctx context.Context, item *savedAnswer) error {
	quizID, err := uuid.Parse(item.QuizID)
	if err != nil {
		return err
	}
	questionID, err := uuid.Parse(item.QuestionID)
	if err != nil {
		return err
	}

	// UPSERT keyed on (quiz, student, question): a later autosave of the
	// same question simply overwrites.
	_, err = w.pool.Exec(ctx,
		`INSERT INTO student_answers (quiz_id, student_id, question_id, answer)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (quiz_id, student_id, question_id) DO UPDATE
		 SET answer = EXCLUDED.answer, updated_at = NOW()`,
		quizID, item.StudentID, questionID, item.Answer,
	)
	return err
}

// drain flushes the remaining queue at shutdown. Stops at the first persist
// failure (the item is already requeued) or at answerDrainLimit.
func (w *AnswerWorker) drain(ctx context.Context) {
	flushed := 0
	for flushed < answerDrainLimit {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}
		if !w.handle(ctx, raw) {
			break
		}
		flushed++
	}

	if flushed > 0 {
		w.log.Info().Int("count", flushed).Msg("Drained queued answers")
	}
}
