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

// MonitorPublisher fans violation events out to live invigilator feeds.
// Best-effort: publish failures never fail the recording.
type MonitorPublisher interface {
	PublishViolation(ctx context.Context, event model.ViolationEvent) error
}

// RedisMonitorPublisher publishes violation events on the quiz's monitor
// channel.
type RedisMonitorPublisher struct {
	rdb *redis.Client
}

// NewRedisMonitorPublisher creates a new RedisMonitorPublisher.
func NewRedisMonitorPublisher(rdb *redis.Client) *RedisMonitorPublisher {
	return &RedisMonitorPublisher{rdb: rdb}
}

// PublishViolation publishes one event.
func (p *RedisMonitorPublisher) PublishViolation(ctx context.Context, event model.ViolationEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, config.CacheKey.QuizMonitorChannel(event.QuizID.String()), raw).Err()
}

// ViolationService records integrity events against attempts. The server
// is the sole authority: client reports are untrusted input events and the
// count is always derived from the stored log.
type ViolationService struct {
	attempts   AttemptStore
	violations ViolationStore
	monitor    MonitorPublisher
	log        zerolog.Logger
}

// NewViolationService creates a new ViolationService.
func NewViolationService(attempts AttemptStore, violations ViolationStore, monitor MonitorPublisher, log zerolog.Logger) *ViolationService {
	return &ViolationService{
		attempts:   attempts,
		violations: violations,
		monitor:    monitor,
		log:        log.With().Str("component", "violation_service").Logger(),
	}
}

// Record appends a violation to the student's attempt and returns the
// resulting log length. The server receive time is the authoritative
// timestamp; the client timestamp rides along for display.
//
// A terminal attempt accrues nothing: the current count is returned with
// no error. Recording never transitions the attempt — threshold policies
// are an external review concern.
func (s *ViolationService) Record(ctx context.Context, studentID int, quizID uuid.UUID, message string, clientReportedAt *time.Time, now time.Time) (int64, error) {
	attempt, err := s.attempts.GetByQuizAndStudent(ctx, quizID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotStarted
		}
		return 0, fmt.Errorf("get attempt: %w", err)
	}

	appended, err := s.violations.Append(ctx, attempt.ID, message, clientReportedAt, now)
	if err != nil {
		return 0, fmt.Errorf("append violation: %w", err)
	}

	count, err := s.violations.Count(ctx, attempt.ID)
	if err != nil {
		return 0, fmt.Errorf("count violations: %w", err)
	}

	if !appended {
		// Attempt went terminal before the event landed. Not an error.
		return count, nil
	}

	event := model.ViolationEvent{
		QuizID:     quizID,
		StudentID:  studentID,
		Message:    message,
		Count:      count,
		RecordedAt: now,
	}
	if err := s.monitor.PublishViolation(ctx, event); err != nil {
		s.log.Warn().Err(err).
			Str("quiz_id", quizID.String()).
			Int("student_id", studentID).
			Msg("monitor publish failed")
	}

	return count, nil
}

// ListByAttempt returns an attempt's violation log in server-received
// order. Read-only reporting path.
func (s *ViolationService) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Violation, error) {
	return s.violations.ListByAttempt(ctx, attemptID)
}
