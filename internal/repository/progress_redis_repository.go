package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-session/internal/recovery"
)

// SnapshotExpiryMargin keeps a Redis key alive past the snapshot age ceiling,
// so a snapshot read exactly at the ceiling is still there.
const SnapshotExpiryMargin = time.Minute

// ProgressRedisRepository stores recovery snapshots as Redis strings. Keys
// expire shortly after maxAge so abandoned snapshots do not pile up; staleness
// itself is still decided by the recovery manager on read.
type ProgressRedisRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewProgressRedisRepository creates a new ProgressRedisRepository for
// snapshots valid up to maxAge.
func NewProgressRedisRepository(rdb *redis.Client, maxAge time.Duration) *ProgressRedisRepository {
	return &ProgressRedisRepository{rdb: rdb, ttl: maxAge + SnapshotExpiryMargin}
}

// Load returns the snapshot stored under key.
func (r *ProgressRedisRepository) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, recovery.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return data, nil
}

// Save overwrites the snapshot under key (last write wins).
func (r *ProgressRedisRepository) Save(ctx context.Context, key string, data []byte) error {
	if err := r.rdb.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot under key. Deleting a missing key is not an error.
func (r *ProgressRedisRepository) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del snapshot: %w", err)
	}
	return nil
}
