package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/metrics"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/recovery"
)

// Progress errors
var (
	ErrProgressNotFound = errors.New("progress snapshot not found")
)

// ProgressService exposes recovery snapshots to clients that save progress
// on their own, outside a live session.
type ProgressService struct {
	repo    recovery.Repository
	maxAge  time.Duration
	metrics *metrics.Recorder
	log     zerolog.Logger
	now     func() time.Time
}

// NewProgressService creates a new ProgressService. rec may be nil.
func NewProgressService(repo recovery.Repository, maxAge time.Duration, rec *metrics.Recorder, log zerolog.Logger) *ProgressService {
	if maxAge <= 0 {
		maxAge = recovery.MaxSnapshotAge
	}
	return &ProgressService{
		repo:    repo,
		maxAge:  maxAge,
		metrics: rec,
		log:     log.With().Str("component", "progress_service").Logger(),
		now:     time.Now,
	}
}

// Get returns the valid snapshot of profileID on testID. Corrupt and stale
// snapshots are deleted on read.
func (s *ProgressService) Get(ctx context.Context, profileID string, testID int64) (*model.SavedProgress, error) {
	key := config.CacheKey.TestProgressKey(profileID, testID)

	data, err := s.repo.Load(ctx, key)
	if err != nil {
		if errors.Is(err, recovery.ErrNotFound) {
			return nil, ErrProgressNotFound
		}
		return nil, fmt.Errorf("load progress: %w", err)
	}

	snap, err := recovery.Decode(data)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Corrupt snapshot purged")
		s.purge(ctx, key, recovery.PurgeCorrupt)
		return nil, ErrProgressNotFound
	}

	if recovery.IsStale(snap, s.now(), s.maxAge) {
		s.purge(ctx, key, recovery.PurgeStale)
		return nil, ErrProgressNotFound
	}

	return &snap, nil
}

// Save stores req as the snapshot of profileID on testID, stamped with the server clock.
func (s *ProgressService) Save(ctx context.Context, profileID string, testID int64, req *model.SaveProgressRequest) (*model.SavedProgress, error) {
	snap := req.ToSavedProgress(s.now().UTC())

	data, err := recovery.Encode(snap)
	if err != nil {
		return nil, err
	}

	err = s.repo.Save(ctx, config.CacheKey.TestProgressKey(profileID, testID), data)
	if s.metrics != nil {
		s.metrics.SnapshotWritten(err == nil)
	}
	if err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}
	return &snap, nil
}

// Delete removes the snapshot of profileID on testID. Deleting a missing
// snapshot is not an error.
func (s *ProgressService) Delete(ctx context.Context, profileID string, testID int64) error {
	if err := s.repo.Delete(ctx, config.CacheKey.TestProgressKey(profileID, testID)); err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SnapshotPurged(recovery.PurgeDiscard)
	}
	return nil
}

func (s *ProgressService) purge(ctx context.Context, key string, reason recovery.PurgeReason) {
	if err := s.repo.Delete(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Str("reason", string(reason)).Msg("Progress purge failed")
		return
	}
	if s.metrics != nil {
		s.metrics.SnapshotPurged(reason)
	}
	s.log.Info().Str("key", key).Str("reason", string(reason)).Msg("Progress purged")
}
