package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNoQuestions means a quiz has no questions to serve.
var ErrNoQuestions = errors.New("quiz has no questions")

// QuizContentService serves the student-facing question payload from a
// Redis cache warmed at startup (and on demand), so live attempts never
// fan out to PostgreSQL for content.
type QuizContentService struct {
	quizzes   QuizStore
	questions QuestionStore
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewQuizContentService creates a new QuizContentService.
func NewQuizContentService(quizzes QuizStore, questions QuestionStore, rdb *redis.Client, log zerolog.Logger) *QuizContentService {
	return &QuizContentService{
		quizzes:   quizzes,
		questions: questions,
		rdb:       rdb,
		log:       log.With().Str("component", "quiz_content_service").Logger(),
	}
}

// WarmQuizCache builds and caches the student payload (no correct answers)
// for one quiz.
func (s *QuizContentService) WarmQuizCache(ctx context.Context, quiz *model.Quiz) error {
	questions, err := s.questions.ListByQuiz(ctx, quiz.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	studentQuestions := make([]model.QuestionForStudent, len(questions))
	for i, q := range questions {
		studentQuestions[i] = model.QuestionForStudent{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			Options:      q.Options,
			OrderNum:     q.OrderNum,
		}
	}

	payload := model.QuizPayload{
		QuizID:    quiz.ID,
		Title:     quiz.Title,
		Duration:  quiz.DurationMinutes,
		Questions: studentQuestions,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	return s.rdb.Set(ctx, config.CacheKey.QuizPayloadKey(quiz.ID.String()), payloadJSON, 0).Err()
}

// PrewarmAllCaches loads every quiz whose window has not closed into Redis
// on startup, before traffic is accepted. Avoids lazy-load stampedes when a
// window opens.
func (s *QuizContentService) PrewarmAllCaches(ctx context.Context) error {
	quizzes, err := s.quizzes.ListOpenOrUpcoming(ctx)
	if err != nil {
		return fmt.Errorf("list quizzes: %w", err)
	}

	if len(quizzes) == 0 {
		s.log.Info().Msg("No open or upcoming quizzes to prewarm")
		return nil
	}

	warmed := 0
	for i := range quizzes {
		if err := s.WarmQuizCache(ctx, &quizzes[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("quiz_id", quizzes[i].ID.String()).
				Msg("Failed to warm quiz, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(quizzes)).
		Msg("Prewarming complete")
	return nil
}

// GetQuizPayload returns the cached student payload, rebuilding the cache
// on a miss.
func (s *QuizContentService) GetQuizPayload(ctx context.Context, quizID uuid.UUID) (*model.QuizPayload, error) {
	key := config.CacheKey.QuizPayloadKey(quizID.String())
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("get payload: %w", err)
		}
		// Cache miss: rebuild from PostgreSQL and self-heal.
		quiz, qErr := s.quizzes.GetByID(ctx, quizID)
		if qErr != nil {
			return nil, fmt.Errorf("get quiz: %w", qErr)
		}
		if wErr := s.WarmQuizCache(ctx, quiz); wErr != nil {
			return nil, wErr
		}
		if data, err = s.rdb.Get(ctx, key).Bytes(); err != nil {
			return nil, fmt.Errorf("get payload after warm: %w", err)
		}
	}

	var payload model.QuizPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}
