package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdesk/quizdesk-backend/internal/model"
)

const attemptColumns = `id, quiz_id, student_id, status, started_at, deadline, submitted_at, score, total_score`

// AttemptRepository handles attempt data access. The terminal transition is
// a single conditional UPDATE — never a read-then-write pair — so it stays
// linearizable across server processes.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// GetByQuizAndStudent retrieves the attempt for a quiz-student pair.
// Returns pgx.ErrNoRows if the student never started.
func (r *AttemptRepository) GetByQuizAndStudent(ctx context.Context, quizID uuid.UUID, studentID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE quiz_id = $1 AND student_id = $2`, quizID, studentID,
	).Scan(&a.ID, &a.QuizID, &a.StudentID, &a.Status, &a.StartedAt, &a.Deadline, &a.SubmittedAt, &a.Score, &a.TotalScore)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new IN_PROGRESS attempt. The UNIQUE (quiz_id, student_id)
// constraint plus ON CONFLICT DO NOTHING makes concurrent duplicate starts
// race-free: the loser gets pgx.ErrNoRows from the empty RETURNING set and
// should fetch the row that won.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (quiz_id, student_id, status, started_at, deadline)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (quiz_id, student_id) DO NOTHING
		 RETURNING id`,
		a.QuizID, a.StudentID, model.AttemptStatusInProgress, a.StartedAt, a.Deadline,
	).Scan(&a.ID)
}

// MarkSubmitted atomically transitions an attempt from IN_PROGRESS to the
// given terminal status, setting submitted_at in the same statement. The
// status predicate in the WHERE clause is the compare-and-swap: if the
// attempt is already terminal the update matches zero rows and
// pgx.ErrNoRows is returned from the empty RETURNING set.
func (r *AttemptRepository) MarkSubmitted(ctx context.Context, quizID uuid.UUID, studentID int, status model.AttemptStatus, at time.Time) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET status = $1, submitted_at = $2
		 WHERE quiz_id = $3 AND student_id = $4 AND status = $5
		 RETURNING `+attemptColumns,
		status, at, quizID, studentID, model.AttemptStatusInProgress,
	).Scan(&a.ID, &a.QuizID, &a.StudentID, &a.Status, &a.StartedAt, &a.Deadline, &a.SubmittedAt, &a.Score, &a.TotalScore)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListExpired returns IN_PROGRESS attempts whose deadline has passed and
// whose quiz has auto-submit enabled. Served by the (status, deadline)
// index; limit bounds one sweep tick.
func (r *AttemptRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.quiz_id, a.student_id, a.status, a.started_at, a.deadline, a.submitted_at, a.score, a.total_score
		 FROM attempts a
		 JOIN quizzes q ON a.quiz_id = q.id
		 WHERE a.status = $1 AND a.deadline < $2 AND q.auto_submit
		 ORDER BY a.deadline ASC
		 LIMIT $3`,
		model.AttemptStatusInProgress, now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// ListUnscored returns terminal attempts whose score is still null and that
// became terminal before the cutoff. Used by the scoring reconcile pass to
// recover jobs lost between the terminal transition and the enqueue.
func (r *AttemptRepository) ListUnscored(ctx context.Context, cutoff time.Time, limit int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE status IN ($1, $2) AND score IS NULL AND submitted_at < $3
		 ORDER BY submitted_at ASC
		 LIMIT $4`,
		model.AttemptStatusSubmitted, model.AttemptStatusAutoSubmitted, cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// SetScore records the scoring result. Conditional on the attempt being
// terminal and not yet scored, so duplicate scoring jobs are no-ops.
// Returns false if no row was updated.
func (r *AttemptRepository) SetScore(ctx context.Context, attemptID uuid.UUID, score, totalScore float64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET score = $1, total_score = $2
		 WHERE id = $3 AND status IN ($4, $5) AND score IS NULL`,
		score, totalScore, attemptID, model.AttemptStatusSubmitted, model.AttemptStatusAutoSubmitted,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AttemptOverview combines an attempt with its student identity and
// violation count for the invigilator monitor.
type AttemptOverview struct {
	model.Attempt
	StudentName    string `json:"student_name"`
	ViolationCount int64  `json:"violation_count"`
}

// ListByQuiz returns all attempts for a quiz with violation counts,
// ordered by student name. Read-only reporting view.
func (r *AttemptRepository) ListByQuiz(ctx context.Context, quizID uuid.UUID) ([]AttemptOverview, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.quiz_id, a.student_id, a.status, a.started_at, a.deadline, a.submitted_at, a.score, a.total_score,
		        s.name,
		        (SELECT COUNT(*) FROM attempt_violations v WHERE v.attempt_id = a.id)
		 FROM attempts a
		 JOIN students s ON a.student_id = s.id
		 WHERE a.quiz_id = $1
		 ORDER BY s.name ASC`, quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overviews []AttemptOverview
	for rows.Next() {
		var o AttemptOverview
		if err := rows.Scan(
			&o.ID, &o.QuizID, &o.StudentID, &o.Status, &o.StartedAt, &o.Deadline, &o.SubmittedAt, &o.Score, &o.TotalScore,
			&o.StudentName, &o.ViolationCount,
		); err != nil {
			return nil, err
		}
		overviews = append(overviews, o)
	}
	return overviews, rows.Err()
}

func scanAttempts(rows pgx.Rows) ([]model.Attempt, error) {
	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.QuizID, &a.StudentID, &a.Status, &a.StartedAt, &a.Deadline, &a.SubmittedAt, &a.Score, &a.TotalScore); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
