package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/exstem-session/internal/recovery"
)

// ProgressSQLRepository stores recovery snapshots in the progress_snapshots
// table through database/sql (sqlite or pgx stdlib).
type ProgressSQLRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewProgressSQLRepository creates a new ProgressSQLRepository.
func NewProgressSQLRepository(db *sql.DB) *ProgressSQLRepository {
	return &ProgressSQLRepository{db: db, now: time.Now}
}

// Load returns the snapshot stored under key.
func (r *ProgressSQLRepository) Load(ctx context.Context, key string) ([]byte, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM progress_snapshots WHERE key = $1`, key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, recovery.ErrNotFound
		}
		return nil, fmt.Errorf("select snapshot: %w", err)
	}
	return []byte(data), nil
}

// Save upserts the snapshot under key (last write wins).
func (r *ProgressSQLRepository) Save(ctx context.Context, key string, data []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO progress_snapshots (key, data, saved_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE
		 SET data = EXCLUDED.data, saved_at = EXCLUDED.saved_at`,
		key, string(data), r.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot under key.
func (r *ProgressSQLRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM progress_snapshots WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// PurgeOlderThan deletes rows written before cutoff and returns how many went.
func (r *ProgressSQLRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM progress_snapshots WHERE saved_at < $1`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge snapshots: %w", err)
	}
	return res.RowsAffected()
}
