package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnswerRepository reads submitted answers from the student_answers table.
// The table is written by the autosave pipeline (answer worker); this
// subsystem only consumes it at scoring time when the Redis hash is gone.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// MapByAttempt returns a questionID → answer map for a quiz-student pair.
func (r *AnswerRepository) MapByAttempt(ctx context.Context, quizID uuid.UUID, studentID int) (map[string]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, answer
		 FROM student_answers
		 WHERE quiz_id = $1 AND student_id = $2`, quizID, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[string]string)
	for rows.Next() {
		var qid uuid.UUID
		var answer string
		if err := rows.Scan(&qid, &answer); err != nil {
			return nil, err
		}
		answers[qid.String()] = answer
	}
	return answers, rows.Err()
}
