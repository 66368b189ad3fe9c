package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// ViolationRepository handles the append-only violation log.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// Append inserts a violation for the attempt, but only while the attempt is
// still IN_PROGRESS — the status predicate lives in the INSERT itself so a
// concurrent terminal transition cannot interleave a late append. Returns
// false (and no error) if the attempt was already terminal.
func (r *ViolationRepository) Append(ctx context.Context, attemptID uuid.UUID, message string, clientReportedAt *time.Time, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_violations (attempt_id, message, client_reported_at, recorded_at)
		 SELECT a.id, $2, $3, $4
		 FROM attempts a
		 WHERE a.id = $1 AND a.status = $5`,
		attemptID, message, clientReportedAt, at, model.AttemptStatusInProgress,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Count returns the length of an attempt's violation log.
func (r *ViolationRepository) Count(ctx context.Context, attemptID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempt_violations WHERE attempt_id = $1`, attemptID,
	).Scan(&count)
	return count, err
}

// ListByAttempt returns an attempt's violations in server-received order.
func (r *ViolationRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Violation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, message, recorded_at, client_reported_at
		 FROM attempt_violations
		 WHERE attempt_id = $1
		 ORDER BY recorded_at ASC, id ASC`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []model.Violation
	for rows.Next() {
		var v model.Violation
		if err := rows.Scan(&v.ID, &v.AttemptID, &v.Message, &v.RecordedAt, &v.ClientReportedAt); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}
