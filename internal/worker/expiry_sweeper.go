package worker

import (
	"context"
	"time"

	"github.com/quizdesk/quizdesk-backend/internal/service"
	"github.com/rs/zerolog"
)

// ExpirySweeper periodically routes overdue IN_PROGRESS attempts through
// the submission coordinator as auto-submissions.
//
// It is safe to run one sweeper per server process with no leader election:
// a duplicate or overlapping sweep either finds nothing IN_PROGRESS or
// loses the coordinator's CAS and observes ALREADY_SUBMITTED. The sweep
// query is just an optimization over the CAS, never the safety mechanism.
type ExpirySweeper struct {
	attempts    service.AttemptStore
	coordinator *service.SubmissionCoordinator
	batchSize   int
	log         zerolog.Logger
}

// NewExpirySweeper creates a new ExpirySweeper.
func NewExpirySweeper(attempts service.AttemptStore, coordinator *service.SubmissionCoordinator, batchSize int, log zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		attempts:    attempts,
		coordinator: coordinator,
		batchSize:   batchSize,
		log:         log.With().Str("component", "expiry_sweeper").Logger(),
	}
}

// SweepTick runs one scan-and-submit cycle and returns how many attempts
// this tick auto-submitted. Attempts are processed independently: one
// failure is logged and the sweep moves on.
func (w *ExpirySweeper) SweepTick(ctx context.Context, now time.Time) (int, error) {
	expired, err := w.attempts.ListExpired(ctx, now, w.batchSize)
	if err != nil {
		return 0, err
	}

	submitted := 0
	for _, a := range expired {
		result, err := w.coordinator.Submit(ctx, a.QuizID, a.StudentID, service.TriggerAuto, now)
		if err != nil {
			w.log.Error().Err(err).
				Str("attempt_id", a.ID.String()).
				Str("quiz_id", a.QuizID.String()).
				Int("student_id", a.StudentID).
				Msg("auto-submit failed, continuing sweep")
			continue
		}
		// ALREADY_SUBMITTED means a user submit raced in after our query —
		// the desired terminal state exists either way.
		if result.Outcome == service.OutcomeSubmittedNow {
			submitted++
		}
	}

	if len(expired) > 0 {
		w.log.Info().
			Int("expired", len(expired)).
			Int("auto_submitted", submitted).
			Msg("sweep tick complete")
	}

	return submitted, nil
}

// Run executes SweepTick with the current time, for scheduler wiring.
func (w *ExpirySweeper) Run(ctx context.Context) {
	if _, err := w.SweepTick(ctx, time.Now()); err != nil {
		w.log.Error().Err(err).Msg("sweep tick failed")
	}
}
