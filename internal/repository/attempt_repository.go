package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-session/internal/model"
)

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a new in-progress attempt and fills in its id and start time.
func (r *AttemptRepository) Create(ctx context.Context, a *model.AttemptRecord) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (id, test_id, profile_id, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING started_at`,
		a.ID, a.TestID, a.ProfileID, model.AttemptStatusInProgress,
	).Scan(&a.StartedAt)
}

// GetByID retrieves an attempt. Returns pgx.ErrNoRows when missing.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptRecord, error) {
	a := &model.AttemptRecord{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, test_id, profile_id, status, started_at, finished_at, score, correct, elapsed_seconds
		 FROM attempts
		 WHERE id = $1`, id,
	).Scan(&a.ID, &a.TestID, &a.ProfileID, &a.Status, &a.StartedAt, &a.FinishedAt, &a.Score, &a.Correct, &a.ElapsedSeconds)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// MarkFinishing moves an in-progress attempt to completed and reports whether
// this call won. The score columns are filled later by the result worker.
func (r *AttemptRepository) MarkFinishing(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, finished_at = $2
		 WHERE id = $3 AND status = $4`,
		model.AttemptStatusCompleted, time.Now(), id, model.AttemptStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RevertFinishing puts an attempt back in progress after a failed submission.
func (r *AttemptRepository) RevertFinishing(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, finished_at = NULL
		 WHERE id = $2 AND status = $3 AND score IS NULL`,
		model.AttemptStatusInProgress, id, model.AttemptStatusCompleted)
	return err
}

// Abandon marks an in-progress attempt as abandoned. Returns pgx.ErrNoRows when
// the attempt is missing or already closed.
func (r *AttemptRepository) Abandon(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, finished_at = $2
		 WHERE id = $3 AND status = $4`,
		model.AttemptStatusAbandoned, time.Now(), id, model.AttemptStatusInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListByProfile retrieves a profile's attempts, newest first.
func (r *AttemptRepository) ListByProfile(ctx context.Context, profileID string) ([]model.AttemptRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, profile_id, status, started_at, finished_at, score, correct, elapsed_seconds
		 FROM attempts
		 WHERE profile_id = $1
		 ORDER BY started_at DESC`, profileID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.AttemptRecord
	for rows.Next() {
		var a model.AttemptRecord
		if err := rows.Scan(&a.ID, &a.TestID, &a.ProfileID, &a.Status, &a.StartedAt, &a.FinishedAt, &a.Score, &a.Correct, &a.ElapsedSeconds); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// SaveResults writes a batch of graded results in one statement.
func (r *AttemptRepository) SaveResults(ctx context.Context, jobs []model.ResultJob) error {
	n := len(jobs)
	ids := make([]uuid.UUID, n)
	scores := make([]float64, n)
	correct := make([]int32, n)
	elapsed := make([]int32, n)
	finishedAts := make([]time.Time, n)

	for i, j := range jobs {
		ids[i] = j.AttemptID
		scores[i] = j.Score
		correct[i] = int32(j.Correct)
		elapsed[i] = int32(j.ElapsedSeconds)
		finishedAts[i] = j.FinishedAt
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE attempts AS a
		SET status = $6,
		    score = t.score,
		    correct = t.correct,
		    elapsed_seconds = t.elapsed,
		    finished_at = t.finished_at
		FROM UNNEST(
			$1::uuid[],
			$2::float8[],
			$3::int[],
			$4::int[],
			$5::timestamptz[]
		) AS t (id, score, correct, elapsed, finished_at)
		WHERE a.id = t.id`,
		ids, scores, correct, elapsed, finishedAts, model.AttemptStatusCompleted,
	)
	return err
}

// SaveResult writes one graded result.
func (r *AttemptRepository) SaveResult(ctx context.Context, job model.ResultJob) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, score = $2, correct = $3, elapsed_seconds = $4, finished_at = $5
		 WHERE id = $6`,
		model.AttemptStatusCompleted, job.Score, job.Correct, job.ElapsedSeconds, job.FinishedAt, job.AttemptID,
	)
	return err
}
