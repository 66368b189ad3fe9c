package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// QuizRepository handles quiz data access.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

// GetByID retrieves a quiz by ID.
func (r *QuizRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	q := &model.Quiz{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, window_start, window_end, duration_minutes, auto_submit, created_at, updated_at
		 FROM quizzes
		 WHERE id = $1`, id,
	).Scan(&q.ID, &q.Title, &q.WindowStart, &q.WindowEnd, &q.DurationMinutes, &q.AutoSubmit, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// ListOpenOrUpcoming returns quizzes whose window has not yet closed.
// Used to prewarm content caches at startup.
func (r *QuizRepository) ListOpenOrUpcoming(ctx context.Context) ([]model.Quiz, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, window_start, window_end, duration_minutes, auto_submit, created_at, updated_at
		 FROM quizzes
		 WHERE window_end > NOW()
		 ORDER BY window_start ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quizzes []model.Quiz
	for rows.Next() {
		var q model.Quiz
		if err := rows.Scan(&q.ID, &q.Title, &q.WindowStart, &q.WindowEnd, &q.DurationMinutes, &q.AutoSubmit, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}
